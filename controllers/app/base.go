package app

import (
	"adrecharge-admin/controllers/admin"
	"adrecharge-admin/inout"
	"adrecharge-admin/middleware"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/pkg/money"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/services/application_service"
	"adrecharge-admin/services/deposit_service"
	"adrecharge-admin/services/refund_service"
	"adrecharge-admin/services/wallet_service"

	"github.com/gin-gonic/gin"
)

var writeError = admin.WriteError

// Controller 用户端接口, 用户ID来自token
type Controller struct {
	deposits     *deposit_service.Service
	applications *application_service.Service
	refunds      *refund_service.Service
	wallets      *wallet_service.Service
}

func NewController(deposits *deposit_service.Service, applications *application_service.Service,
	refunds *refund_service.Service, wallets *wallet_service.Service) *Controller {
	return &Controller{
		deposits:     deposits,
		applications: applications,
		refunds:      refunds,
		wallets:      wallets,
	}
}

// SubmitDeposit 提交充值申请
func (h *Controller) SubmitDeposit(c *gin.Context) {
	var req inout.SubmitDepositReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	d, err := h.deposits.Submit(c.Request.Context(), deposit_service.SubmitInput{
		UserID:      middleware.GetUID(c),
		AdAccountID: req.AdAccountID,
		Amount:      amount,
		Remarks:     req.Remarks,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, d)
}

// ListDeposits 当前用户的充值申请
func (h *Controller) ListDeposits(c *gin.Context) {
	var req inout.ListDepositReq
	if !middleware.BindQuery(c, &req) {
		return
	}
	f := dm.ListFilter{
		UserID:         middleware.GetUID(c),
		ApprovalStatus: dm.ApprovalStatus(req.Status),
		RechargeStatus: dm.RechargeStatus(req.RechargeStatus),
		Page:           req.Page,
		PageSize:       req.PageSize,
	}
	f.Normalize()
	items, total, err := h.deposits.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, inout.PageRes{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize})
}

// SubmitApplication 提交开户申请
func (h *Controller) SubmitApplication(c *gin.Context) {
	var req inout.SubmitApplicationReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	a, err := h.applications.Submit(c.Request.Context(), application_service.SubmitInput{
		UserID:       middleware.GetUID(c),
		Platform:     dm.Platform(req.Platform),
		AccountName:  req.AccountName,
		AccountCount: req.AccountCount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, a)
}

// SubmitRefund 提交退款申请
func (h *Controller) SubmitRefund(c *gin.Context) {
	var req inout.SubmitRefundReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := h.refunds.Submit(c.Request.Context(), middleware.GetUID(c), req.AdAccountID, amount, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, r)
}

// Wallet 当前用户钱包
func (h *Controller) Wallet(c *gin.Context) {
	var req inout.WalletReq
	if !middleware.BindQuery(c, &req) {
		return
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}
	sum, err := h.wallets.Summary(c.Request.Context(), middleware.GetUID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sum)
}
