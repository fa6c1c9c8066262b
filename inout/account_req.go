package inout

import (
	"adrecharge-admin/services/application_service"
)

// SubmitApplicationReq 开户申请
type SubmitApplicationReq struct {
	Platform     string `json:"platform" binding:"required,oneof=META GOOGLE TIKTOK SNAPCHAT"`
	AccountName  string `json:"account_name" binding:"required,max=200"`
	AccountCount int    `json:"account_count" binding:"omitempty,min=1"`
}

// ApproveApplicationReq 审核开户申请
type ApproveApplicationReq struct {
	Bindings []application_service.AccountBinding `json:"bindings" binding:"required,min=1,dive"`
}

// RejectApplicationReq 拒绝开户申请
type RejectApplicationReq struct {
	Reason string `json:"reason" binding:"required,max=500"`
	Refund bool   `json:"refund"`
}

// SubmitRefundReq 退款申请
type SubmitRefundReq struct {
	AdAccountID int    `json:"ad_account_id" binding:"required,min=1"`
	Amount      string `json:"amount" binding:"required"`
	Reason      string `json:"reason" binding:"max=500"`
}

// AdjustWalletReq 人工调账, amount 可为负
type AdjustWalletReq struct {
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference" binding:"required,max=64"`
	Remark    string `json:"remark" binding:"max=500"`
}

// WalletReq 钱包流水条数
type WalletReq struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// AuditLogReq 审计日志查询
type AuditLogReq struct {
	LogType   string `form:"log_type"`
	DepositID int    `form:"deposit_id" binding:"omitempty,min=1"`
	ApplyNo   string `form:"apply_no"`
	Operator  string `form:"operator"`
	Forced    *bool  `form:"forced"`
	StartTime string `form:"start_time"` // RFC3339
	EndTime   string `form:"end_time"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}
