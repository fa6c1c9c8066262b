package agent

import (
	"adrecharge-admin/controllers/admin"
	"adrecharge-admin/inout"
	"adrecharge-admin/middleware"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/services/deposit_service"

	"github.com/gin-gonic/gin"
)

// Controller 代理充值服务回调
type Controller struct {
	deposits *deposit_service.Service
}

func NewController(deposits *deposit_service.Service) *Controller {
	return &Controller{deposits: deposits}
}

// Start 代理开始执行某次尝试
func (h *Controller) Start(c *gin.Context) {
	id, ok := admin.ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.AgentStartReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	d, err := h.deposits.AgentStart(c.Request.Context(), id, req.Attempt)
	if err != nil {
		admin.WriteError(c, err)
		return
	}
	response.Success(c, d)
}

// Report 代理回执; 重复或过期的回执返回 STALE_REPORT, 不改变状态
func (h *Controller) Report(c *gin.Context) {
	id, ok := admin.ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.AgentReportReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	applied, err := h.deposits.HandleReport(c.Request.Context(), deposit_service.Report{
		DepositID: id,
		Attempt:   req.Attempt,
		Outcome:   deposit_service.ReportOutcome(req.Outcome),
		Detail:    req.Detail,
	})
	if err != nil {
		admin.WriteError(c, err)
		return
	}
	if !applied {
		response.ErrorWithData(c, response.STALE_REPORT, inout.ReportRes{Applied: false})
		return
	}
	response.Success(c, inout.ReportRes{Applied: true})
}
