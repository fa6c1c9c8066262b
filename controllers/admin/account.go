package admin

import (
	"strconv"
	"time"

	"adrecharge-admin/inout"
	"adrecharge-admin/middleware"
	"adrecharge-admin/model/audit_model"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/services/application_service"
	"adrecharge-admin/services/audit_service"
	"adrecharge-admin/services/refund_service"
	"adrecharge-admin/services/wallet_service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ApplicationController 开户申请审核
type ApplicationController struct {
	applications *application_service.Service
}

func NewApplicationController(applications *application_service.Service) *ApplicationController {
	return &ApplicationController{applications: applications}
}

// Approve 审核通过, 分配外部账户
func (h *ApplicationController) Approve(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.ApproveApplicationReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	a, err := h.applications.Approve(c.Request.Context(), id, req.Bindings, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, a)
}

// Reject 拒绝, refund 时退回开户费
func (h *ApplicationController) Reject(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.RejectApplicationReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	a, err := h.applications.Reject(c.Request.Context(), id, req.Reason, req.Refund, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, a)
}

// RefundController 退款审核
type RefundController struct {
	refunds *refund_service.Service
}

func NewRefundController(refunds *refund_service.Service) *RefundController {
	return &RefundController{refunds: refunds}
}

func (h *RefundController) Approve(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	r, err := h.refunds.Approve(c.Request.Context(), id, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, r)
}

func (h *RefundController) Reject(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req inout.RejectReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	r, err := h.refunds.Reject(c.Request.Context(), id, req.Reason, middleware.GetOperator(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, r)
}

// WalletController 钱包查询与人工调账
type WalletController struct {
	wallets *wallet_service.Service
}

func NewWalletController(wallets *wallet_service.Service) *WalletController {
	return &WalletController{wallets: wallets}
}

// Get 指定用户的钱包
func (h *WalletController) Get(c *gin.Context) {
	uid, ok := ParseID(c, "uid")
	if !ok {
		return
	}
	var req inout.WalletReq
	if !middleware.BindQuery(c, &req) {
		return
	}
	sum, err := h.wallets.Summary(c.Request.Context(), uid, limitOr(req.Limit, 50))
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, sum)
}

// Adjust 人工调账
func (h *WalletController) Adjust(c *gin.Context) {
	uid, ok := ParseID(c, "uid")
	if !ok {
		return
	}
	var req inout.AdjustWalletReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsZero() || !amount.Equal(amount.Round(2)) {
		response.Error(c, response.INVALID_PARAMS, "invalid amount")
		return
	}
	receipt, err := h.wallets.AdminAdjust(c.Request.Context(), uid, amount, req.Reference, middleware.GetOperator(c), req.Remark)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, receipt)
}

func limitOr(v, def int) int {
	if v < 1 {
		return def
	}
	return v
}

// AuditController 审计日志查询
type AuditController struct {
	reader audit_service.Reader
}

func NewAuditController(reader audit_service.Reader) *AuditController {
	return &AuditController{reader: reader}
}

// List 审计日志
func (h *AuditController) List(c *gin.Context) {
	var req inout.AuditLogReq
	if !middleware.BindQuery(c, &req) {
		return
	}
	q := audit_model.ListQuery{
		LogType:   req.LogType,
		DepositID: req.DepositID,
		ApplyNo:   req.ApplyNo,
		Operator:  req.Operator,
		Forced:    req.Forced,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	var err error
	if q.Start, err = parseTime(req.StartTime); err != nil {
		response.Error(c, response.INVALID_PARAMS, "invalid start_time")
		return
	}
	if q.End, err = parseTime(req.EndTime); err != nil {
		response.Error(c, response.INVALID_PARAMS, "invalid end_time")
		return
	}
	q.Normalize()

	logs, total, err := h.reader.List(c.Request.Context(), q)
	if err != nil {
		WriteError(c, err)
		return
	}
	items := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		items = append(items, gin.H{
			"log":           l,
			"log_type_text": audit_model.GetLogTypeText(l.LogType),
		})
	}
	response.Success(c, inout.PageRes{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize})
}

// parseTime 支持 RFC3339 或 unix 秒
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}
