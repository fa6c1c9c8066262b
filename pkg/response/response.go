package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 统一错误码定义
const (
	SUCCESS           = 200
	ERROR             = 500
	INVALID_PARAMS    = 20001
	AUTH_ERROR        = 20002
	NOT_FOUND         = 20003
	FORBIDDEN         = 20004
	TOO_MANY_REQUESTS = 20005
	INTERNAL_ERROR    = 20006

	// 充值业务错误码
	INSUFFICIENT_FUNDS      = 30001
	INVALID_TRANSITION      = 30002
	CONCURRENT_MODIFICATION = 30003
	BULK_VALIDATION         = 30004
	STALE_REPORT            = 30005
)

// 错误码消息映射
var codeMsg = map[int]string{
	SUCCESS:           "OK",
	ERROR:             "服务器内部错误",
	INVALID_PARAMS:    "请求参数错误",
	AUTH_ERROR:        "认证失败",
	NOT_FOUND:         "资源不存在",
	FORBIDDEN:         "访问被禁止",
	TOO_MANY_REQUESTS: "请求过于频繁",
	INTERNAL_ERROR:    "内部服务错误",

	INSUFFICIENT_FUNDS:      "钱包余额不足",
	INVALID_TRANSITION:      "当前状态不允许该操作",
	CONCURRENT_MODIFICATION: "记录正在被其他操作修改, 请刷新后重试",
	BULK_VALIDATION:         "批量操作校验未通过",
	STALE_REPORT:            "回执已过期或重复",
}

// Response 统一响应结构; 业务错误也返回 HTTP 200, 由 code 区分
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	OriginUrl string      `json:"originUrl"`
	RequestID string      `json:"requestId,omitempty"`
}

// GetMsg 未登记的错误码按服务器错误处理
func GetMsg(code int) string {
	if msg, ok := codeMsg[code]; ok {
		return msg
	}
	return codeMsg[ERROR]
}

func pick(code int, message []string) string {
	if len(message) > 0 && message[0] != "" {
		return message[0]
	}
	return GetMsg(code)
}

// write 写响应并保存到上下文, 供请求日志读取
func write(c *gin.Context, resp Response) {
	resp.OriginUrl = c.Request.URL.Path
	if rid, ok := c.Get("request_id"); ok {
		resp.RequestID, _ = rid.(string)
	}
	if resp.Code != SUCCESS {
		resp.Error = "error"
	}
	c.Set("response", resp)
	c.JSON(http.StatusOK, resp)
}

func Success(c *gin.Context, data interface{}) {
	write(c, Response{Code: SUCCESS, Message: GetMsg(SUCCESS), Data: data})
}

func Error(c *gin.Context, code int, message ...string) {
	write(c, Response{Code: code, Message: pick(code, message)})
}

// ErrorWithData 错误响应附带明细, 如批量校验失败的条目
func ErrorWithData(c *gin.Context, code int, data interface{}, message ...string) {
	write(c, Response{Code: code, Message: pick(code, message), Data: data})
}

// Abort 中间件中使用, 写错误后终止后续处理
func Abort(c *gin.Context, code int, message ...string) {
	Error(c, code, message...)
	c.Abort()
}
