package middleware

import (
	"errors"
	"strconv"
	"strings"

	"adrecharge-admin/pkg/jwt"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/pkg/security"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextUID    = "uid"
	ContextRole   = "role"
	ContextClaims = "claims"

	// AgentKeyHeader 代理回执接口的密钥头
	AgentKeyHeader = "X-Agent-Key"
)

// JWTAuth JWT认证中间件
func JWTAuth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := getTokenFromRequest(c)
		if token == "" {
			response.Abort(c, response.AUTH_ERROR, "请求未携带token，无权限访问")
			return
		}

		claims, err := manager.ParseToken(token)
		if err != nil {
			var message string
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				message = "授权已过期"
			case errors.Is(err, jwt.ErrTokenMalformed):
				message = "token格式错误"
			case errors.Is(err, jwt.ErrTokenNotValidYet):
				message = "token尚未激活"
			default:
				message = "token无效"
			}
			response.Abort(c, response.AUTH_ERROR, message)
			return
		}

		c.Set(ContextUID, claims.UID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// getTokenFromRequest 从 Authorization 头获取token
func getTokenFromRequest(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	if strings.HasPrefix(token, "Bearer ") {
		token = strings.TrimPrefix(token, "Bearer ")
	}
	return strings.TrimSpace(token)
}

// RequireRole 角色权限检查中间件
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			response.Abort(c, response.FORBIDDEN, "无法获取用户角色信息")
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}
		response.Abort(c, response.FORBIDDEN, "无权限访问此资源")
	}
}

// AgentAuth 校验代理服务的密钥, keyHash 为 bcrypt 哈希
func AgentAuth(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(AgentKeyHeader)
		if key == "" {
			response.Abort(c, response.AUTH_ERROR, "缺少代理密钥")
			return
		}
		if !security.CheckKeyHash(key, keyHash) {
			response.Abort(c, response.AUTH_ERROR, "代理密钥无效")
			return
		}
		c.Set(ContextRole, "agent")
		c.Next()
	}
}

// GetUID 读取当前登录用户ID
func GetUID(c *gin.Context) int {
	return c.GetInt(ContextUID)
}

// GetOperator 操作人标识, 用于审计
func GetOperator(c *gin.Context) string {
	role := c.GetString(ContextRole)
	if role == "" {
		return "unknown"
	}
	return role + ":" + strconv.Itoa(GetUID(c))
}
