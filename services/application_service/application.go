package application_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/application_model"
	"adrecharge-admin/model/audit_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/lock"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/services/audit_service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoBindings     = errors.New("at least one external account binding is required")
	ErrTooManyAccount = errors.New("account count exceeds limit")
	ErrFeeRefunded    = errors.New("opening fee was already refunded")
)

// AccountBinding 审核通过时分配的外部账户
type AccountBinding struct {
	ExternalID        string `json:"external_id" validate:"required,max=64"`
	ExternalName      string `json:"external_name" validate:"max=200"`
	AutomationEnabled bool   `json:"automation_enabled"`
}

// SubmitInput 开户申请
type SubmitInput struct {
	UserID       int
	Platform     dm.Platform
	AccountName  string
	AccountCount int
}

// Service 开户申请审核
type Service struct {
	apps          application_model.Repository
	ledger        wallet_model.Ledger
	locker        lock.Locker
	audit         audit_service.Recorder
	logger        *zap.Logger
	validate      *validator.Validate
	feePerAccount decimal.Decimal
	maxAccounts   int
	lockTTL       time.Duration
	now           func() time.Time
}

func NewService(apps application_model.Repository, ledger wallet_model.Ledger, locker lock.Locker,
	audit audit_service.Recorder, logger *zap.Logger, feePerAccount decimal.Decimal, maxAccounts int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = audit_service.NopRecorder{}
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if maxAccounts < 1 {
		maxAccounts = 1
	}
	return &Service{
		apps:          apps,
		ledger:        ledger,
		locker:        locker,
		audit:         audit,
		logger:        logger,
		validate:      validator.New(),
		feePerAccount: feePerAccount,
		maxAccounts:   maxAccounts,
		lockTTL:       30 * time.Second,
		now:           time.Now,
	}
}

func (s *Service) newApplyNo() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "AP" + s.now().Format("20060102") + hex[:8]
}

// Submit 扣除开户费后创建申请; 创建失败时退回开户费
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*application_model.AccountApplication, error) {
	if !in.Platform.Valid() {
		return nil, fmt.Errorf("unknown platform %q", in.Platform)
	}
	name := strings.TrimSpace(in.AccountName)
	if name == "" {
		return nil, errors.New("account name is required")
	}
	if in.AccountCount < 1 {
		in.AccountCount = 1
	}
	if in.AccountCount > s.maxAccounts {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAccount, in.AccountCount, s.maxAccounts)
	}

	a := &application_model.AccountApplication{
		ApplyNo:      s.newApplyNo(),
		UserID:       in.UserID,
		Platform:     in.Platform,
		AccountName:  name,
		AccountCount: in.AccountCount,
		OpeningFee:   s.feePerAccount.Mul(decimal.NewFromInt(int64(in.AccountCount))).Round(2),
		Status:       application_model.StatusPending,
	}

	if a.OpeningFee.IsPositive() {
		if _, err := s.ledger.ReserveAndDebit(ctx, a.UserID, a.OpeningFee, a.FeeCauseID()); err != nil {
			monitoring.RecordWalletOperation(string(wallet_model.DirectionDebit), "failed")
			return nil, err
		}
		monitoring.RecordWalletOperation(string(wallet_model.DirectionDebit), "ok")
	}

	if err := s.apps.Create(ctx, a); err != nil {
		if a.OpeningFee.IsPositive() {
			if _, cerr := s.ledger.Credit(context.WithoutCancel(ctx), a.UserID, a.OpeningFee, a.RefundCauseID()); cerr != nil {
				s.logger.Error("开户申请创建失败且退回开户费失败",
					zap.String("apply_no", a.ApplyNo),
					zap.Int("user_id", a.UserID),
					zap.Error(cerr))
			}
		}
		return nil, err
	}

	s.record(ctx, a, "", "submit", fmt.Sprintf("user:%d", a.UserID), "提交开户申请")
	return a, nil
}

// Get 查询申请
func (s *Service) Get(ctx context.Context, id int) (*application_model.AccountApplication, error) {
	return s.apps.Get(ctx, id)
}

// ValidateBindings 校验绑定信息
func (s *Service) ValidateBindings(bindings []AccountBinding) error {
	if len(bindings) == 0 {
		return ErrNoBindings
	}
	for i := range bindings {
		bindings[i].ExternalID = strings.TrimSpace(bindings[i].ExternalID)
		if err := s.validate.Struct(bindings[i]); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
	}
	return nil
}

func (s *Service) withLock(ctx context.Context, id int, fn func() error) error {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf("application:lock:%d", id), s.lockTTL)
	if errors.Is(err, lock.ErrLockBusy) {
		return fmt.Errorf("%w: application %d is being processed", model.ErrConcurrentModification, id)
	}
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Approve 审核通过并为每个绑定创建广告账户
func (s *Service) Approve(ctx context.Context, id int, bindings []AccountBinding, operator string) (*application_model.AccountApplication, error) {
	if err := s.ValidateBindings(bindings); err != nil {
		return nil, err
	}

	var out *application_model.AccountApplication
	err := s.withLock(ctx, id, func() error {
		a, err := s.apps.Get(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != application_model.StatusPending {
			return fmt.Errorf("%w: application is %s", model.ErrInvalidTransition, a.Status)
		}
		if a.OpeningFee.IsPositive() {
			refund, err := s.ledger.FindEntry(ctx, a.RefundCauseID(), wallet_model.DirectionCredit)
			if err != nil {
				return err
			}
			if refund != nil {
				return ErrFeeRefunded
			}
		}

		accounts := make([]dm.AdAccount, 0, len(bindings))
		for _, b := range bindings {
			accounts = append(accounts, dm.AdAccount{
				UserID:            a.UserID,
				ApplicationID:     a.ID,
				Platform:          a.Platform,
				ExternalID:        b.ExternalID,
				ExternalName:      b.ExternalName,
				AutomationEnabled: b.AutomationEnabled,
			})
		}

		updated := *a
		updated.Status = application_model.StatusApproved
		updated.ReviewedBy = operator
		if err := s.apps.Review(ctx, &updated, a.Version, accounts); err != nil {
			return err
		}
		s.record(ctx, &updated, a.Status, "approve", operator, fmt.Sprintf("开户申请通过, 绑定 %d 个账户", len(accounts)))
		out = &updated
		return nil
	})
	return out, err
}

// Reject 拒绝申请; refund 为 true 且有开户费时退回钱包
func (s *Service) Reject(ctx context.Context, id int, reason string, refund bool, operator string) (*application_model.AccountApplication, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, model.ErrReasonRequired
	}

	var out *application_model.AccountApplication
	err := s.withLock(ctx, id, func() error {
		a, err := s.apps.Get(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != application_model.StatusPending {
			return fmt.Errorf("%w: application is %s", model.ErrInvalidTransition, a.Status)
		}

		updated := *a
		updated.Status = application_model.StatusRejected
		updated.RejectReason = reason
		updated.ReviewedBy = operator

		// 先退款再改状态: 退款按 cause 幂等, 状态写入失败时重试拒绝不会重复退款
		if refund && a.OpeningFee.IsPositive() {
			if _, err := s.ledger.Credit(ctx, a.UserID, a.OpeningFee, a.RefundCauseID()); err != nil {
				monitoring.RecordWalletOperation(string(wallet_model.DirectionCredit), "failed")
				return err
			}
			monitoring.RecordWalletOperation(string(wallet_model.DirectionCredit), "ok")
			updated.Refunded = true
		}

		if err := s.apps.Review(ctx, &updated, a.Version, nil); err != nil {
			return err
		}
		s.record(ctx, &updated, a.Status, "reject", operator, reason)
		out = &updated
		return nil
	})
	return out, err
}

func (s *Service) record(ctx context.Context, a *application_model.AccountApplication, from application_model.Status, action, operator, msg string) {
	s.audit.Record(ctx, &audit_model.DepositAuditLog{
		LogType:   audit_model.LogTypeApplication,
		ApplyNo:   a.ApplyNo,
		UserID:    &a.UserID,
		Action:    action,
		OldStatus: string(from),
		NewStatus: string(a.Status),
		Operator:  operator,
		Message:   msg,
		Details: map[string]interface{}{
			"application_id": a.ID,
			"platform":       a.Platform,
			"opening_fee":    a.OpeningFee.StringFixed(2),
			"refunded":       a.Refunded,
		},
	})
}
