package admin

import (
	"adrecharge-admin/inout"
	"adrecharge-admin/middleware"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/services/deposit_service"

	"github.com/gin-gonic/gin"
)

// DepositController 充值申请审核
type DepositController struct {
	deposits *deposit_service.Service
}

func NewDepositController(deposits *deposit_service.Service) *DepositController {
	return &DepositController{deposits: deposits}
}

// List 充值申请列表
func (h *DepositController) List(c *gin.Context) {
	var req inout.ListDepositReq
	if !middleware.BindQuery(c, &req) {
		return
	}
	f := dm.ListFilter{
		UserID:         req.UserID,
		ApprovalStatus: dm.ApprovalStatus(req.Status),
		RechargeStatus: dm.RechargeStatus(req.RechargeStatus),
		Page:           req.Page,
		PageSize:       req.PageSize,
	}
	f.Normalize()
	items, total, err := h.deposits.List(c.Request.Context(), f)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, inout.PageRes{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize})
}

// Detail 申请详情及状态历史
func (h *DepositController) Detail(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	d, history, err := h.deposits.Detail(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, inout.DepositDetailRes{Deposit: d, History: history})
}

// Approve 审核通过并发起充值
func (h *DepositController) Approve(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	res, err := h.deposits.Approve(c.Request.Context(), id, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, res)
}

// Reject 拒绝
func (h *DepositController) Reject(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.RejectReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	d, err := h.deposits.Reject(c.Request.Context(), id, req.Reason, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, d)
}

// Retry 失败后重新充值, 不重复扣款
func (h *DepositController) Retry(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	res, err := h.deposits.RetryRecharge(c.Request.Context(), id, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, res)
}

// ForceApprove 人工确认外部已到账
func (h *DepositController) ForceApprove(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.ForceApproveReq
	if c.Request.ContentLength > 0 && !middleware.BindJSON(c, &req) {
		return
	}
	d, err := h.deposits.ForceApprove(c.Request.Context(), id, middleware.GetOperator(c), req.Note)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, d)
}

// ConfirmManual 人工充值完成
func (h *DepositController) ConfirmManual(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	d, err := h.deposits.ConfirmManual(c.Request.Context(), id, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, d)
}

// Sweep 立即执行一轮中断恢复
func (h *DepositController) Sweep(c *gin.Context) {
	stats, err := h.deposits.SweepOnce(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, stats)
}
