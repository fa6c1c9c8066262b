package middleware

import (
	"fmt"
	"runtime/debug"

	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-ID"

// Recovery panic 转为 INTERNAL_ERROR; debug 模式附带堆栈
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		stack := string(debug.Stack())
		monitoring.RecordPanic(c.FullPath())
		logger.Error("panic recovered",
			requestFields(c, zap.Any("panic", recovered), zap.String("stack", stack))...)

		var data interface{}
		if gin.IsDebugging() {
			data = gin.H{"panic": fmt.Sprint(recovered), "stack": stack}
		}
		response.ErrorWithData(c, response.INTERNAL_ERROR, data)
		c.Abort()
	})
}

func requestFields(c *gin.Context, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("request_id", c.GetString("request_id")),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	}, extra...)
}

// ErrorHandler 处理器只 c.Error 而未写响应时补写
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		logger.Warn("request error", requestFields(c, zap.Error(last.Err))...)
		if c.Writer.Written() {
			return
		}
		switch {
		case last.IsType(gin.ErrorTypeBind):
			response.Error(c, response.INVALID_PARAMS, BindingMessage(last.Err))
		case last.IsType(gin.ErrorTypePublic):
			response.Error(c, response.ERROR, last.Error())
		default:
			response.Error(c, response.INTERNAL_ERROR)
		}
	}
}

// SecureHeaders 安全头中间件
func SecureHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// RequestID 为每个请求生成唯一ID, 已携带的沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}
