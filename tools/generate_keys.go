package main

import (
	"flag"
	"fmt"
	"log"

	"adrecharge-admin/pkg/security"
)

func main() {
	cost := flag.Int("cost", security.DefaultCost, "bcrypt cost for the agent key hash")
	flag.Parse()

	fmt.Println("=== adrecharge-admin 密钥生成工具 ===")
	fmt.Println()

	jwtKey, err := security.GenerateKey(32)
	if err != nil {
		log.Fatal("生成JWT密钥失败:", err)
	}
	agentKey, err := security.GenerateKey(24)
	if err != nil {
		log.Fatal("生成代理密钥失败:", err)
	}
	agentHash, err := security.HashKey(agentKey, *cost)
	if err != nil {
		log.Fatal("哈希代理密钥失败:", err)
	}

	fmt.Println("服务端 .env:")
	fmt.Printf("JWT_SIGNING_KEY=%s\n", jwtKey)
	fmt.Printf("AGENT_KEY_HASH='%s'\n", agentHash)
	fmt.Println()
	fmt.Println("代理服务 (请求头 X-Agent-Key):")
	fmt.Printf("AGENT_KEY=%s\n", agentKey)
	fmt.Println()
	fmt.Println("服务端只保存哈希, 明文代理密钥请单独交付给代理服务")
}
