package deposit_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/audit_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/lock"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/services/audit_service"
	"adrecharge-admin/services/recharge_service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrAccountNotOwned   = errors.New("ad account does not belong to user")
	ErrNoExternalAccount = errors.New("ad account has no external account id")
	ErrInvalidReport     = errors.New("report outcome must be completed or failed")
)

// Classifier 为账户选择充值通道, 失败时自行降级为人工
type Classifier interface {
	Classify(ctx context.Context, accounts []*dm.AdAccount) map[int]dm.RechargeMethod
}

// ForgettingClassifier 带缓存的分类器, 可清除单个账户的缓存结果
type ForgettingClassifier interface {
	Classifier
	Forget(ctx context.Context, account *dm.AdAccount)
}

var _ ForgettingClassifier = (*recharge_service.Classifier)(nil)

// Branch 审核/重试后实际进入的分支
type Branch string

const (
	BranchCompleted Branch = "completed"
	BranchQueued    Branch = "queued"
	BranchFailed    Branch = "failed"
	BranchManual    Branch = "manual"
)

// Result 审核或重试的结果. 通道失败不作为 error 返回, 体现在 Branch=failed
type Result struct {
	Deposit *dm.DepositRequest `json:"deposit"`
	Branch  Branch             `json:"branch"`
	Err     string             `json:"error,omitempty"`
}

// Deps 依赖
type Deps struct {
	Deposits   dm.Repository
	Accounts   dm.AdAccountRepository
	Rates      dm.CommissionRateRepository
	Ledger     wallet_model.Ledger
	Classifier Classifier
	Adapters   recharge_service.Adapters
	Locker     lock.Locker
	Audit      audit_service.Recorder
	Logger     *zap.Logger
}

// Options 参数
type Options struct {
	DefaultRate decimal.Decimal
	LockTTL     time.Duration
	StaleAfter  time.Duration
	SweepBatch  int
}

// Service 充值编排: 分类, 扣款, 调用通道, 写状态
type Service struct {
	deposits   dm.Repository
	accounts   dm.AdAccountRepository
	rates      dm.CommissionRateRepository
	ledger     wallet_model.Ledger
	classifier Classifier
	adapters   recharge_service.Adapters
	locker     lock.Locker
	audit      audit_service.Recorder
	logger     *zap.Logger
	opts       Options
	now        func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit_service.NopRecorder{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 100
	}
	return &Service{
		deposits:   deps.Deposits,
		accounts:   deps.Accounts,
		rates:      deps.Rates,
		ledger:     deps.Ledger,
		classifier: deps.Classifier,
		adapters:   deps.Adapters,
		locker:     deps.Locker,
		audit:      deps.Audit,
		logger:     deps.Logger,
		opts:       opts,
		now:        time.Now,
	}
}

func lockKey(id int) string {
	return fmt.Sprintf("deposit:lock:%d", id)
}

// withLock 持有单笔申请的锁执行 fn; 锁被占用视为并发修改
func (s *Service) withLock(ctx context.Context, id int, fn func() error) error {
	release, err := s.locker.Acquire(ctx, lockKey(id), s.opts.LockTTL)
	if errors.Is(err, lock.ErrLockBusy) {
		return fmt.Errorf("%w: deposit %d is being processed", model.ErrConcurrentModification, id)
	}
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// step 计算并持久化一次状态迁移, 同时写历史和审计
func (s *Service) step(ctx context.Context, d *dm.DepositRequest, ev Event, operator, detail string, mutate func(*dm.DepositRequest)) error {
	from := StateOf(d)
	next, err := Transition(from, ev)
	if err != nil {
		return err
	}

	updated := *d
	apply(&updated, next)
	if mutate != nil {
		mutate(&updated)
	}
	h := &dm.StatusHistory{
		ApplyNo:      d.ApplyNo,
		Action:       string(ev.Action),
		FromApproval: from.Approval,
		ToApproval:   next.Approval,
		FromRecharge: from.Recharge,
		ToRecharge:   next.Recharge,
		Method:       next.Method,
		Attempt:      next.Attempt,
		Operator:     operator,
		Forced:       ev.Action == ActionForceApprove,
		Detail:       truncate(detail, 500),
	}
	if err := s.deposits.Transition(ctx, &updated, d.Version, h); err != nil {
		monitoring.RecordDepositAction(string(ev.Action), "conflict")
		return err
	}
	*d = updated
	monitoring.RecordDepositAction(string(ev.Action), "ok")

	s.audit.Record(ctx, &audit_model.DepositAuditLog{
		LogType:     logTypeOf(ev.Action),
		DepositID:   &d.ID,
		ApplyNo:     d.ApplyNo,
		UserID:      &d.UserID,
		AdAccountID: &d.AdAccountID,
		Action:      string(ev.Action),
		OldStatus:   statusText(from),
		NewStatus:   statusText(next),
		Method:      string(next.Method),
		Attempt:     next.Attempt,
		Operator:    operator,
		Forced:      ev.Action == ActionForceApprove,
		Message:     fmt.Sprintf("%s: %s -> %s", ev.Action, statusText(from), statusText(next)),
		ErrorMsg:    d.LastError,
		Details: map[string]interface{}{
			"amount":        d.Amount.StringFixed(2),
			"total_debited": d.TotalDebited.StringFixed(2),
			"detail":        detail,
		},
	})
	return nil
}

func statusText(s State) string {
	return fmt.Sprintf("%s/%s", s.Approval, s.Recharge)
}

func logTypeOf(a Action) string {
	switch a {
	case ActionApprove:
		return audit_model.LogTypeApprove
	case ActionReject:
		return audit_model.LogTypeReject
	case ActionRechargeCompleted, ActionRechargeQueued, ActionRechargeFailed:
		return audit_model.LogTypeRecharge
	case ActionRetry:
		return audit_model.LogTypeRetry
	case ActionForceApprove:
		return audit_model.LogTypeForceApprove
	case ActionConfirmManual:
		return audit_model.LogTypeManualConfirm
	case ActionAgentStart, ActionReportCompleted, ActionReportFailed:
		return audit_model.LogTypeAgentReport
	case ActionRecover:
		return audit_model.LogTypeRecover
	}
	return audit_model.LogTypeOperationError
}

// truncate 截断到不超过 n 字节, 不拆开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

// Get 查询单笔申请
func (s *Service) Get(ctx context.Context, id int) (*dm.DepositRequest, error) {
	return s.deposits.Get(ctx, id)
}

// Detail 申请详情及状态历史
func (s *Service) Detail(ctx context.Context, id int) (*dm.DepositRequest, []dm.StatusHistory, error) {
	d, err := s.deposits.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.deposits.History(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return d, history, nil
}

// List 分页查询
func (s *Service) List(ctx context.Context, f dm.ListFilter) ([]dm.DepositRequest, int64, error) {
	return s.deposits.List(ctx, f)
}
