package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcrypt 推荐的最小成本
	MinCost     = 12
	DefaultCost = 14

	minKeyLength = 16
)

var ErrKeyTooShort = errors.New("密钥长度不能少于16位")

// HashKey 使用 bcrypt 哈希代理密钥
func HashKey(key string, cost int) (string, error) {
	if len(key) < minKeyLength {
		return "", ErrKeyTooShort
	}
	if cost < bcrypt.MinCost {
		cost = DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	return string(bytes), err
}

// CheckKeyHash 验证密钥
func CheckKeyHash(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateKey 生成指定字节数的随机密钥, 十六进制编码
func GenerateKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
