package application_model

import (
	"context"
	"time"

	"adrecharge-admin/model/deposit_model"

	"github.com/shopspring/decimal"
)

// Status 开户申请状态
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// AccountApplication 广告账户开户申请
type AccountApplication struct {
	ID           int                    `json:"id" gorm:"primaryKey"`
	ApplyNo      string                 `json:"apply_no" gorm:"type:varchar(32);uniqueIndex;not null"`
	UserID       int                    `json:"user_id" gorm:"column:user_id;index;not null"`
	Platform     deposit_model.Platform `json:"platform" gorm:"type:varchar(20);not null"`
	AccountName  string                 `json:"account_name" gorm:"type:varchar(200);not null"`
	AccountCount int                    `json:"account_count" gorm:"not null;default:1"`
	OpeningFee   decimal.Decimal        `json:"opening_fee" gorm:"type:decimal(20,2);not null;default:0"`
	Status       Status                 `json:"status" gorm:"type:varchar(20);index;not null"`
	RejectReason string                 `json:"reject_reason" gorm:"type:varchar(500)"`
	Refunded     bool                   `json:"refunded" gorm:"not null;default:false"`
	ReviewedBy   string                 `json:"reviewed_by" gorm:"type:varchar(50)"`
	Version      int64                  `json:"version" gorm:"not null;default:0"`
	CreateTime   time.Time              `json:"create_time" gorm:"column:create_time"`
	UpdateTime   time.Time              `json:"update_time" gorm:"column:update_time"`
}

func (AccountApplication) TableName() string {
	return "account_application"
}

// FeeCauseID 开户费扣款幂等键
func (a *AccountApplication) FeeCauseID() string {
	return "application:" + a.ApplyNo + ":fee"
}

// RefundCauseID 开户费退款幂等键
func (a *AccountApplication) RefundCauseID() string {
	return "application:" + a.ApplyNo + ":refund"
}

// Repository 开户申请存储
type Repository interface {
	Create(ctx context.Context, a *AccountApplication) error
	Get(ctx context.Context, id int) (*AccountApplication, error)
	GetMany(ctx context.Context, ids []int) (map[int]*AccountApplication, error)
	// Review 乐观锁更新申请, 同一事务内创建绑定的广告账户
	Review(ctx context.Context, a *AccountApplication, expectedVersion int64, accounts []deposit_model.AdAccount) error
}
