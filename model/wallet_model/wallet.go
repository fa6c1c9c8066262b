package wallet_model

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrIdempotencyMismatch = errors.New("cause already used with different user or amount")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInvalidAmount       = errors.New("ledger amount must be positive")
	ErrEmptyCause          = errors.New("cause id is required")
)

// Direction 流水方向
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Wallet 用户钱包, 余额只能通过带 cause 的流水变动
type Wallet struct {
	UserID     int             `json:"user_id" gorm:"primaryKey;autoIncrement:false;column:user_id"`
	Balance    decimal.Decimal `json:"balance" gorm:"type:decimal(20,2);not null;default:0"`
	Version    int64           `json:"version" gorm:"not null;default:0"`
	CreateTime time.Time       `json:"create_time" gorm:"column:create_time"`
	UpdateTime time.Time       `json:"update_time" gorm:"column:update_time"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// Entry 钱包流水, (cause_id, direction) 唯一
type Entry struct {
	ID            int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        int             `json:"user_id" gorm:"column:user_id;index;not null"`
	CauseID       string          `json:"cause_id" gorm:"type:varchar(100);not null;uniqueIndex:uk_cause_direction,priority:1"`
	Direction     Direction       `json:"direction" gorm:"type:varchar(10);not null;uniqueIndex:uk_cause_direction,priority:2"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	BalanceBefore decimal.Decimal `json:"balance_before" gorm:"type:decimal(20,2);not null"`
	BalanceAfter  decimal.Decimal `json:"balance_after" gorm:"type:decimal(20,2);not null"`
	CreateTime    time.Time       `json:"create_time" gorm:"column:create_time"`
}

func (Entry) TableName() string {
	return "wallet_entries"
}

// Receipt 记账结果; Replayed 表示同一 cause 已处理过, 返回的是原始流水
type Receipt struct {
	Entry    Entry `json:"entry"`
	Replayed bool  `json:"replayed"`
}

// Ledger 钱包账本
type Ledger interface {
	// ReserveAndDebit 扣款; 余额不足返回 ErrInsufficientFunds 且不改变任何状态
	ReserveAndDebit(ctx context.Context, userID int, amount decimal.Decimal, causeID string) (*Receipt, error)
	// Credit 入账, 钱包不存在时自动创建
	Credit(ctx context.Context, userID int, amount decimal.Decimal, causeID string) (*Receipt, error)
	Wallet(ctx context.Context, userID int) (*Wallet, error)
	// FindEntry 不存在时返回 nil, nil
	FindEntry(ctx context.Context, causeID string, direction Direction) (*Entry, error)
	Entries(ctx context.Context, userID int, limit int) ([]Entry, error)
}

// CheckReplay 校验重放请求与原始流水是否一致
func CheckReplay(existing *Entry, userID int, amount decimal.Decimal) (*Receipt, error) {
	if existing.UserID != userID || !existing.Amount.Equal(amount) {
		return nil, ErrIdempotencyMismatch
	}
	return &Receipt{Entry: *existing, Replayed: true}, nil
}

// ValidateRequest 记账参数校验
func ValidateRequest(amount decimal.Decimal, causeID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if causeID == "" {
		return ErrEmptyCause
	}
	return nil
}
