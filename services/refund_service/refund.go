package refund_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/audit_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/refund_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/lock"
	"adrecharge-admin/pkg/money"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/services/audit_service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrAccountNotOwned = errors.New("ad account does not belong to user")

// Service 退款申请: 审核通过后把金额退回钱包
type Service struct {
	refunds  refund_model.Repository
	accounts dm.AdAccountRepository
	ledger   wallet_model.Ledger
	locker   lock.Locker
	audit    audit_service.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(refunds refund_model.Repository, accounts dm.AdAccountRepository, ledger wallet_model.Ledger,
	locker lock.Locker, audit audit_service.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = audit_service.NopRecorder{}
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Service{
		refunds:  refunds,
		accounts: accounts,
		ledger:   ledger,
		locker:   locker,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit 用户提交退款申请
func (s *Service) Submit(ctx context.Context, userID, adAccountID int, amount decimal.Decimal, reason string) (*refund_model.RefundRequest, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, money.ErrInvalidAmount
	}
	account, err := s.accounts.Get(ctx, adAccountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrAccountNotOwned
	}

	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	r := &refund_model.RefundRequest{
		ApplyNo:     "RF" + s.now().Format("20060102") + hex[:8],
		UserID:      userID,
		AdAccountID: adAccountID,
		Amount:      amount,
		Reason:      strings.TrimSpace(reason),
		Status:      refund_model.StatusPending,
	}
	if err := s.refunds.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) withLock(ctx context.Context, id int, fn func() error) error {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf("refund:lock:%d", id), 30*time.Second)
	if errors.Is(err, lock.ErrLockBusy) {
		return fmt.Errorf("%w: refund %d is being processed", model.ErrConcurrentModification, id)
	}
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Approve 入账后改状态; 入账按 cause 幂等, 状态写入失败可直接重试
func (s *Service) Approve(ctx context.Context, id int, operator string) (*refund_model.RefundRequest, error) {
	var out *refund_model.RefundRequest
	err := s.withLock(ctx, id, func() error {
		r, err := s.refunds.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != refund_model.StatusPending {
			return fmt.Errorf("%w: refund is %s", model.ErrInvalidTransition, r.Status)
		}

		if _, err := s.ledger.Credit(ctx, r.UserID, r.Amount, r.CauseID()); err != nil {
			monitoring.RecordWalletOperation(string(wallet_model.DirectionCredit), "failed")
			return err
		}
		monitoring.RecordWalletOperation(string(wallet_model.DirectionCredit), "ok")

		updated := *r
		updated.Status = refund_model.StatusApproved
		updated.ReviewedBy = operator
		if err := s.refunds.Update(ctx, &updated, r.Version); err != nil {
			s.logger.Error("退款已入账但状态写入失败", zap.Int("refund_id", id), zap.Error(err))
			return err
		}
		s.record(ctx, &updated, r.Status, "approve", operator)
		out = &updated
		return nil
	})
	return out, err
}

// Reject 拒绝退款; 已经入账的申请不能再拒绝
func (s *Service) Reject(ctx context.Context, id int, reason, operator string) (*refund_model.RefundRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, model.ErrReasonRequired
	}

	var out *refund_model.RefundRequest
	err := s.withLock(ctx, id, func() error {
		r, err := s.refunds.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != refund_model.StatusPending {
			return fmt.Errorf("%w: refund is %s", model.ErrInvalidTransition, r.Status)
		}
		credited, err := s.ledger.FindEntry(ctx, r.CauseID(), wallet_model.DirectionCredit)
		if err != nil {
			return err
		}
		if credited != nil {
			return fmt.Errorf("%w: refund already credited", model.ErrInvalidTransition)
		}

		updated := *r
		updated.Status = refund_model.StatusRejected
		updated.RejectReason = reason
		updated.ReviewedBy = operator
		if err := s.refunds.Update(ctx, &updated, r.Version); err != nil {
			return err
		}
		s.record(ctx, &updated, r.Status, "reject", operator)
		out = &updated
		return nil
	})
	return out, err
}

func (s *Service) record(ctx context.Context, r *refund_model.RefundRequest, from refund_model.Status, action, operator string) {
	s.audit.Record(ctx, &audit_model.DepositAuditLog{
		LogType:     audit_model.LogTypeRefund,
		ApplyNo:     r.ApplyNo,
		UserID:      &r.UserID,
		AdAccountID: &r.AdAccountID,
		Action:      action,
		OldStatus:   string(from),
		NewStatus:   string(r.Status),
		Operator:    operator,
		Message:     fmt.Sprintf("退款申请 %s: %s", r.ApplyNo, action),
		Details: map[string]interface{}{
			"amount":        r.Amount.StringFixed(2),
			"reject_reason": r.RejectReason,
		},
	})
}
