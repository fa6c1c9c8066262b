package refund_model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status 退款申请状态
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// RefundRequest 广告账户余额退回钱包的申请
type RefundRequest struct {
	ID           int             `json:"id" gorm:"primaryKey"`
	ApplyNo      string          `json:"apply_no" gorm:"type:varchar(32);uniqueIndex;not null"`
	UserID       int             `json:"user_id" gorm:"column:user_id;index;not null"`
	AdAccountID  int             `json:"ad_account_id" gorm:"column:ad_account_id;index;not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Reason       string          `json:"reason" gorm:"type:varchar(500)"`
	Status       Status          `json:"status" gorm:"type:varchar(20);index;not null"`
	RejectReason string          `json:"reject_reason" gorm:"type:varchar(500)"`
	ReviewedBy   string          `json:"reviewed_by" gorm:"type:varchar(50)"`
	Version      int64           `json:"version" gorm:"not null;default:0"`
	CreateTime   time.Time       `json:"create_time" gorm:"column:create_time"`
	UpdateTime   time.Time       `json:"update_time" gorm:"column:update_time"`
}

func (RefundRequest) TableName() string {
	return "refund_request"
}

// CauseID 退款入账幂等键
func (r *RefundRequest) CauseID() string {
	return "refund:" + r.ApplyNo
}

// Repository 退款申请存储
type Repository interface {
	Create(ctx context.Context, r *RefundRequest) error
	Get(ctx context.Context, id int) (*RefundRequest, error)
	Update(ctx context.Context, r *RefundRequest, expectedVersion int64) error
}
