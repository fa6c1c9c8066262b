package inout

import (
	dm "adrecharge-admin/model/deposit_model"
)

// PageRes 分页结果
type PageRes struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// DepositDetailRes 充值申请详情
type DepositDetailRes struct {
	Deposit *dm.DepositRequest `json:"deposit"`
	History []dm.StatusHistory `json:"history"`
}

// ReportRes 回执处理结果
type ReportRes struct {
	Applied bool `json:"applied"`
}
