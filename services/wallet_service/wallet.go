package wallet_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adrecharge-admin/model/audit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/services/audit_service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrReferenceRequired = errors.New("adjustment reference is required")

// Summary 钱包余额及最近流水
type Summary struct {
	Wallet  wallet_model.Wallet  `json:"wallet"`
	Entries []wallet_model.Entry `json:"entries"`
}

// Service 钱包查询与人工调账
type Service struct {
	ledger wallet_model.Ledger
	audit  audit_service.Recorder
	logger *zap.Logger
}

func NewService(ledger wallet_model.Ledger, audit audit_service.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = audit_service.NopRecorder{}
	}
	return &Service{ledger: ledger, audit: audit, logger: logger}
}

// Summary 钱包不存在时返回零余额
func (s *Service) Summary(ctx context.Context, userID, limit int) (*Summary, error) {
	w, err := s.ledger.Wallet(ctx, userID)
	if errors.Is(err, wallet_model.ErrWalletNotFound) {
		w = &wallet_model.Wallet{UserID: userID, Balance: decimal.Zero}
	} else if err != nil {
		return nil, err
	}
	entries, err := s.ledger.Entries(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []wallet_model.Entry{}
	}
	return &Summary{Wallet: *w, Entries: entries}, nil
}

// AdminAdjust 人工调账; amount 为正入账, 为负扣款. 同一 reference 只生效一次
func (s *Service) AdminAdjust(ctx context.Context, userID int, amount decimal.Decimal, reference, operator, remark string) (*wallet_model.Receipt, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceRequired
	}
	cause := "admin:" + reference

	var (
		receipt *wallet_model.Receipt
		err     error
		dir     = wallet_model.DirectionCredit
	)
	if amount.IsNegative() {
		dir = wallet_model.DirectionDebit
		receipt, err = s.ledger.ReserveAndDebit(ctx, userID, amount.Neg(), cause)
	} else {
		receipt, err = s.ledger.Credit(ctx, userID, amount, cause)
	}
	if err != nil {
		monitoring.RecordWalletOperation(string(dir), "failed")
		return nil, err
	}
	monitoring.RecordWalletOperation(string(dir), "ok")

	if !receipt.Replayed {
		s.logger.Info("人工调账",
			zap.Int("user_id", userID),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("cause_id", cause),
			zap.String("operator", operator))
		s.audit.Record(ctx, &audit_model.DepositAuditLog{
			LogType:  audit_model.LogTypeWalletAdjust,
			UserID:   &userID,
			Action:   string(dir),
			Operator: operator,
			Message:  fmt.Sprintf("人工调账 %s: %s", reference, amount.StringFixed(2)),
			Details: map[string]interface{}{
				"cause_id":       cause,
				"balance_before": receipt.Entry.BalanceBefore.StringFixed(2),
				"balance_after":  receipt.Entry.BalanceAfter.StringFixed(2),
				"remark":         remark,
			},
			CreatedAt: time.Now(),
		})
	}
	return receipt, nil
}
