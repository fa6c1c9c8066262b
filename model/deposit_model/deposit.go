package deposit_model

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Platform 广告平台
type Platform string

const (
	PlatformMeta     Platform = "META"
	PlatformGoogle   Platform = "GOOGLE"
	PlatformTikTok   Platform = "TIKTOK"
	PlatformSnapchat Platform = "SNAPCHAT"
)

// Valid 是否为支持的平台
func (p Platform) Valid() bool {
	switch p {
	case PlatformMeta, PlatformGoogle, PlatformTikTok, PlatformSnapchat:
		return true
	}
	return false
}

// ParsePlatform 解析平台名称
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// ApprovalStatus 审核状态
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// RechargeStatus 充值子状态, 仅在 APPROVED 下有意义
type RechargeStatus string

const (
	RechargeNone       RechargeStatus = "NONE"
	RechargePending    RechargeStatus = "PENDING"
	RechargeInProgress RechargeStatus = "IN_PROGRESS"
	RechargeCompleted  RechargeStatus = "COMPLETED"
	RechargeFailed     RechargeStatus = "FAILED"
)

// RechargeMethod 充值通道; 审核前为 UNASSIGNED
type RechargeMethod string

const (
	MethodUnassigned RechargeMethod = "UNASSIGNED"
	MethodDirect     RechargeMethod = "DIRECT"
	MethodAgent      RechargeMethod = "AGENT"
	MethodManual     RechargeMethod = "MANUAL"
)

// IsChannel 是否为可分配的充值通道
func (m RechargeMethod) IsChannel() bool {
	return m == MethodDirect || m == MethodAgent || m == MethodManual
}

// AdAccount 外部广告账户
type AdAccount struct {
	ID                int             `json:"id" gorm:"primaryKey"`
	UserID            int             `json:"user_id" gorm:"column:user_id;index;not null"`
	ApplicationID     int             `json:"application_id" gorm:"column:application_id;index"`
	Platform          Platform        `json:"platform" gorm:"type:varchar(20);not null;uniqueIndex:uk_platform_external,priority:1"`
	ExternalID        string          `json:"external_id" gorm:"type:varchar(64);not null;uniqueIndex:uk_platform_external,priority:2"`
	ExternalName      string          `json:"external_name" gorm:"type:varchar(200)"`
	AutomationEnabled bool            `json:"automation_enabled" gorm:"not null;default:false"`
	CachedBalance     decimal.Decimal `json:"cached_balance" gorm:"type:decimal(20,2);not null;default:0"`
	CreateTime        time.Time       `json:"create_time" gorm:"column:create_time"`
	UpdateTime        time.Time       `json:"update_time" gorm:"column:update_time"`
}

func (AdAccount) TableName() string {
	return "ad_account"
}

// DepositRequest 充值申请; 手续费在提交时冻结, 之后不再重算
type DepositRequest struct {
	ID                int             `json:"id" gorm:"primaryKey"`
	ApplyNo           string          `json:"apply_no" gorm:"type:varchar(32);uniqueIndex;not null"`
	UserID            int             `json:"user_id" gorm:"column:user_id;index;not null"`
	AdAccountID       int             `json:"ad_account_id" gorm:"column:ad_account_id;index;not null"`
	Platform          Platform        `json:"platform" gorm:"type:varchar(20);not null"`
	ExternalAccountID string          `json:"external_account_id" gorm:"type:varchar(64);not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	CommissionRate    decimal.Decimal `json:"commission_rate" gorm:"type:decimal(5,2);not null"`
	CommissionAmount  decimal.Decimal `json:"commission_amount" gorm:"type:decimal(20,2);not null"`
	TotalDebited      decimal.Decimal `json:"total_debited" gorm:"type:decimal(20,2);not null"`
	Remarks           string          `json:"remarks" gorm:"type:varchar(500)"`
	AdminRemarks      string          `json:"admin_remarks" gorm:"type:varchar(500)"`
	ApprovalStatus    ApprovalStatus  `json:"approval_status" gorm:"type:varchar(20);index;not null"`
	RechargeStatus    RechargeStatus  `json:"recharge_status" gorm:"type:varchar(20);index;not null"`
	RechargeMethod    RechargeMethod  `json:"recharge_method" gorm:"type:varchar(20);not null"`
	AttemptCount      int             `json:"attempt_count" gorm:"not null;default:0"`
	LastError         string          `json:"last_error" gorm:"type:varchar(500)"`
	ForceApproved     bool            `json:"force_approved" gorm:"not null;default:false"`
	ForcedBy          string          `json:"forced_by" gorm:"type:varchar(50)"`
	RejectReason      string          `json:"reject_reason" gorm:"type:varchar(500)"`
	ApprovedBy        string          `json:"approved_by" gorm:"type:varchar(50)"`
	Version           int64           `json:"version" gorm:"not null;default:0"`
	CreateTime        time.Time       `json:"create_time" gorm:"column:create_time"`
	ApprovedAt        *time.Time      `json:"approved_at" gorm:"column:approved_at"`
	UpdateTime        time.Time       `json:"update_time" gorm:"column:update_time;index"`
}

func (DepositRequest) TableName() string {
	return "deposit_request"
}

// CauseID 充值扣款的幂等键
func (d *DepositRequest) CauseID() string {
	return fmt.Sprintf("deposit:%d", d.ID)
}

// StatusHistory 充值申请状态变更历史
type StatusHistory struct {
	ID           int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	DepositID    int            `json:"deposit_id" gorm:"column:deposit_id;index;not null"`
	ApplyNo      string         `json:"apply_no" gorm:"type:varchar(32);not null"`
	Action       string         `json:"action" gorm:"type:varchar(30);not null"`
	FromApproval ApprovalStatus `json:"from_approval" gorm:"type:varchar(20)"`
	ToApproval   ApprovalStatus `json:"to_approval" gorm:"type:varchar(20)"`
	FromRecharge RechargeStatus `json:"from_recharge" gorm:"type:varchar(20)"`
	ToRecharge   RechargeStatus `json:"to_recharge" gorm:"type:varchar(20)"`
	Method       RechargeMethod `json:"method" gorm:"type:varchar(20)"`
	Attempt      int            `json:"attempt"`
	Operator     string         `json:"operator" gorm:"type:varchar(50);not null"`
	Forced       bool           `json:"forced" gorm:"not null;default:false"`
	Detail       string         `json:"detail" gorm:"type:varchar(500)"`
	CreateTime   time.Time      `json:"create_time" gorm:"column:create_time"`
}

func (StatusHistory) TableName() string {
	return "deposit_status_history"
}

// CommissionRate 用户在某平台的手续费率(百分比)
type CommissionRate struct {
	ID         int             `json:"id" gorm:"primaryKey"`
	UserID     int             `json:"user_id" gorm:"column:user_id;not null;uniqueIndex:uk_user_platform,priority:1"`
	Platform   Platform        `json:"platform" gorm:"type:varchar(20);not null;uniqueIndex:uk_user_platform,priority:2"`
	Rate       decimal.Decimal `json:"rate" gorm:"type:decimal(5,2);not null"`
	UpdateTime time.Time       `json:"update_time" gorm:"column:update_time"`
}

func (CommissionRate) TableName() string {
	return "commission_rate"
}

// ListFilter 充值申请列表筛选
type ListFilter struct {
	UserID         int
	ApprovalStatus ApprovalStatus
	RechargeStatus RechargeStatus
	Page           int
	PageSize       int
}

// StaleQuery 查询长时间未更新的充值申请
type StaleQuery struct {
	Approval      ApprovalStatus
	Recharge      RechargeStatus
	Method        RechargeMethod // 空表示不限
	UpdatedBefore time.Time
	AfterID       int // 游标, 只返回 id 大于该值的记录
	Limit         int
}

// Repository 充值申请存储
type Repository interface {
	Create(ctx context.Context, d *DepositRequest) error
	Get(ctx context.Context, id int) (*DepositRequest, error)
	GetMany(ctx context.Context, ids []int) (map[int]*DepositRequest, error)
	List(ctx context.Context, f ListFilter) ([]DepositRequest, int64, error)
	// Transition 以 expectedVersion 做乐观锁写入新状态并追加历史;
	// 版本不一致返回 model.ErrConcurrentModification. 成功后 d.Version 为新版本.
	Transition(ctx context.Context, d *DepositRequest, expectedVersion int64, h *StatusHistory) error
	History(ctx context.Context, id int) ([]StatusHistory, error)
	ListStale(ctx context.Context, q StaleQuery) ([]DepositRequest, error)
}

// AdAccountRepository 广告账户存储
type AdAccountRepository interface {
	Create(ctx context.Context, a *AdAccount) error
	Get(ctx context.Context, id int) (*AdAccount, error)
	GetMany(ctx context.Context, ids []int) (map[int]*AdAccount, error)
	ListByUser(ctx context.Context, userID int) ([]AdAccount, error)
	UpdateCachedBalance(ctx context.Context, id int, balance decimal.Decimal) error
}

// CommissionRateRepository 手续费率存储
type CommissionRateRepository interface {
	Rate(ctx context.Context, userID int, platform Platform) (decimal.Decimal, bool, error)
	Upsert(ctx context.Context, r *CommissionRate) error
}

// Normalize 分页参数归一
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}
