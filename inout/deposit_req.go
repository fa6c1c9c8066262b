package inout

import (
	"adrecharge-admin/services/application_service"
)

// SubmitDepositReq 用户提交充值申请
type SubmitDepositReq struct {
	AdAccountID int    `json:"ad_account_id" binding:"required,min=1"`
	Amount      string `json:"amount" binding:"required"`
	Remarks     string `json:"remarks" binding:"max=500"`
}

// ListDepositReq 充值申请列表查询
type ListDepositReq struct {
	Status         string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED"`
	RechargeStatus string `form:"recharge_status" binding:"omitempty,oneof=NONE PENDING IN_PROGRESS COMPLETED FAILED"`
	UserID         int    `form:"user_id" binding:"omitempty,min=1"`
	Page           int    `form:"page" binding:"omitempty,min=1"`
	PageSize       int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// RejectReq 拒绝
type RejectReq struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ForceApproveReq 强制完成
type ForceApproveReq struct {
	Note string `json:"note" binding:"max=500"`
}

// 批量操作对象
const (
	BulkKindDeposit     = "deposit"
	BulkKindApplication = "application"
)

// BulkApproveReq 批量审核; bindings 仅开户申请需要, 键为申请ID
type BulkApproveReq struct {
	Kind     string                                       `json:"kind" binding:"required,oneof=deposit application"`
	IDs      []int                                        `json:"ids" binding:"required,min=1,dive,min=1"`
	Bindings map[int][]application_service.AccountBinding `json:"bindings"`
}

// BulkRejectReq 批量拒绝
type BulkRejectReq struct {
	Kind   string `json:"kind" binding:"required,oneof=deposit application"`
	IDs    []int  `json:"ids" binding:"required,min=1,dive,min=1"`
	Reason string `json:"reason" binding:"required,max=500"`
	Refund bool   `json:"refund"`
}

// AgentStartReq 代理开始执行
type AgentStartReq struct {
	Attempt int `json:"attempt" binding:"required,min=1"`
}

// AgentReportReq 代理回执
type AgentReportReq struct {
	Attempt int    `json:"attempt" binding:"required,min=1"`
	Outcome string `json:"outcome" binding:"required,oneof=completed failed"`
	Detail  string `json:"detail" binding:"max=1000"`
}
