package middleware

import (
	"errors"
	"io"
	"strings"

	"adrecharge-admin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// BindingMessage 把绑定/校验错误转换为可读消息
func BindingMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]string, len(ve))
		for i, fe := range ve {
			out[i] = fe.Field() + " " + fe.Tag()
			if fe.Param() != "" {
				out[i] += "=" + fe.Param()
			}
		}
		return strings.Join(out, ", ")
	}
	if errors.Is(err, io.EOF) {
		return "请求体为空或格式不正确"
	}
	return err.Error()
}

// BindJSON 绑定并校验请求体, 失败时直接写出参数错误
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.Error(c, response.INVALID_PARAMS, BindingMessage(err))
		return false
	}
	return true
}

// BindQuery 绑定并校验查询参数
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		response.Error(c, response.INVALID_PARAMS, BindingMessage(err))
		return false
	}
	return true
}
