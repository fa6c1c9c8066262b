package deposit_service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"adrecharge-admin/model"
	"adrecharge-admin/model/audit_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/lock"
	"adrecharge-admin/repository/inmem"
	"adrecharge-admin/services/audit_service"
	"adrecharge-admin/services/recharge_service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type scriptedAdapter struct {
	method dm.RechargeMethod
	calls  atomic.Int32
	mu     sync.Mutex
	err    error
	delay  time.Duration
}

func (a *scriptedAdapter) Method() dm.RechargeMethod { return a.method }

func (a *scriptedAdapter) Recharge(_ context.Context, req recharge_service.Request) (recharge_service.Outcome, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	err := a.err
	a.mu.Unlock()
	if err != nil {
		return recharge_service.Outcome{}, err
	}
	status := recharge_service.OutcomeCompleted
	if a.method == dm.MethodAgent {
		status = recharge_service.OutcomeQueued
	}
	return recharge_service.Outcome{Status: status, Reference: req.Reference()}, nil
}

func (a *scriptedAdapter) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

type staticClassifier map[int]dm.RechargeMethod

func (c staticClassifier) Classify(_ context.Context, accounts []*dm.AdAccount) map[int]dm.RechargeMethod {
	out := make(map[int]dm.RechargeMethod, len(accounts))
	for _, a := range accounts {
		if m, ok := c[a.ID]; ok {
			out[a.ID] = m
		} else {
			out[a.ID] = dm.MethodManual
		}
	}
	return out
}

type forgettingClassifier struct {
	staticClassifier
	forgot []int
}

func (c *forgettingClassifier) Forget(_ context.Context, a *dm.AdAccount) {
	c.forgot = append(c.forgot, a.ID)
}

type fixture struct {
	svc      *Service
	deposits *inmem.DepositRepository
	accounts *inmem.AdAccountRepository
	rates    *inmem.CommissionRateRepository
	ledger   *inmem.Ledger
	locker   *lock.LocalLocker
	audit    *audit_service.MemoryRecorder
	direct   *scriptedAdapter
	agent    *scriptedAdapter
	classes  staticClassifier
	seq      int
}

const userID = 42

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		deposits: inmem.NewDepositRepository(),
		accounts: inmem.NewAdAccountRepository(),
		rates:    inmem.NewCommissionRateRepository(),
		ledger:   inmem.NewLedger(),
		locker:   lock.NewLocalLocker(),
		audit:    audit_service.NewMemoryRecorder(),
		direct:   &scriptedAdapter{method: dm.MethodDirect},
		agent:    &scriptedAdapter{method: dm.MethodAgent},
		classes:  staticClassifier{},
	}
	f.svc = NewService(Deps{
		Deposits:   f.deposits,
		Accounts:   f.accounts,
		Rates:      f.rates,
		Ledger:     f.ledger,
		Classifier: f.classes,
		Adapters:   recharge_service.NewAdapters(f.direct, f.agent, recharge_service.ManualAdapter{}),
		Locker:     f.locker,
		Audit:      f.audit,
	}, Options{DefaultRate: dec("5"), StaleAfter: 5 * time.Minute, SweepBatch: 2})
	return f
}

func (f *fixture) account(t *testing.T, method dm.RechargeMethod) *dm.AdAccount {
	t.Helper()
	f.seq++
	a := &dm.AdAccount{UserID: userID, Platform: dm.PlatformMeta, ExternalID: fmt.Sprintf("act_%d", f.seq)}
	require.NoError(t, f.accounts.Create(t.Context(), a))
	f.classes[a.ID] = method
	return a
}

func (f *fixture) submit(t *testing.T, method dm.RechargeMethod, amount string) *dm.DepositRequest {
	t.Helper()
	a := f.account(t, method)
	d, err := f.svc.Submit(t.Context(), SubmitInput{UserID: userID, AdAccountID: a.ID, Amount: dec(amount)})
	require.NoError(t, err)
	return d
}

func (f *fixture) balance(t *testing.T) string {
	t.Helper()
	w, err := f.ledger.Wallet(t.Context(), userID)
	require.NoError(t, err)
	return w.Balance.StringFixed(2)
}

func TestSubmit(t *testing.T) {
	t.Run("ok, commission frozen at submission", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodDirect, "200")

		require.Equal(t, "10.00", d.CommissionAmount.StringFixed(2))
		require.Equal(t, "210.00", d.TotalDebited.StringFixed(2))
		require.Equal(t, dm.ApprovalPending, d.ApprovalStatus)
		require.Equal(t, dm.RechargeNone, d.RechargeStatus)
		require.Equal(t, dm.MethodUnassigned, d.RechargeMethod)
		require.Regexp(t, `^DP\d{8}[0-9A-F]{8}$`, d.ApplyNo)
		require.Equal(t, "500.00", f.balance(t), "submission does not touch the wallet")
	})

	t.Run("ok, per-user rate overrides default", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.rates.Upsert(t.Context(), &dm.CommissionRate{UserID: userID, Platform: dm.PlatformMeta, Rate: dec("2.5")}))
		d := f.submit(t, dm.MethodDirect, "100")
		require.Equal(t, "2.50", d.CommissionAmount.StringFixed(2))
		require.Equal(t, "102.50", d.TotalDebited.StringFixed(2))
	})

	t.Run("fail, account owned by another user", func(t *testing.T) {
		f := newFixture(t)
		a := &dm.AdAccount{UserID: 7, Platform: dm.PlatformGoogle, ExternalID: "g"}
		require.NoError(t, f.accounts.Create(t.Context(), a))
		_, err := f.svc.Submit(t.Context(), SubmitInput{UserID: userID, AdAccountID: a.ID, Amount: dec("10")})
		require.ErrorIs(t, err, ErrAccountNotOwned)
	})

	t.Run("fail, bad amount", func(t *testing.T) {
		f := newFixture(t)
		a := f.account(t, dm.MethodDirect)
		_, err := f.svc.Submit(t.Context(), SubmitInput{UserID: userID, AdAccountID: a.ID, Amount: dec("1.234")})
		require.Error(t, err)
	})
}

func TestApprove(t *testing.T) {
	t.Run("ok, direct completes", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodDirect, "100")

		res, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchCompleted, res.Branch)
		require.Equal(t, dm.RechargeCompleted, res.Deposit.RechargeStatus)
		require.Equal(t, 1, res.Deposit.AttemptCount)
		require.NotNil(t, res.Deposit.ApprovedAt)
		require.Equal(t, "395.00", f.balance(t))
	})

	t.Run("ok, agent queued", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodAgent, "100")

		res, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchQueued, res.Branch)
		require.Equal(t, dm.RechargePending, res.Deposit.RechargeStatus)
	})

	t.Run("ok, manual waits for confirmation", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodManual, "100")

		res, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchManual, res.Branch)
		require.Equal(t, dm.RechargeNone, res.Deposit.RechargeStatus)
		require.Equal(t, dm.MethodManual, res.Deposit.RechargeMethod)
		require.Equal(t, "395.00", f.balance(t))

		got, err := f.svc.ConfirmManual(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, dm.RechargeCompleted, got.RechargeStatus)
		require.False(t, got.ForceApproved)
	})

	t.Run("ok, adapter failure keeps the debit", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		f.direct.fail(&recharge_service.AdapterError{Method: dm.MethodDirect, Kind: recharge_service.KindTimeout, Detail: "no response"})
		d := f.submit(t, dm.MethodDirect, "100")

		res, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchFailed, res.Branch)
		require.Contains(t, res.Err, "timeout")
		require.Equal(t, dm.ApprovalApproved, res.Deposit.ApprovalStatus)
		require.Equal(t, dm.RechargeFailed, res.Deposit.RechargeStatus)
		require.Equal(t, "395.00", f.balance(t))
	})

	t.Run("fail, insufficient funds leaves deposit pending", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("50"))
		d := f.submit(t, dm.MethodDirect, "100")

		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.ErrorIs(t, err, wallet_model.ErrInsufficientFunds)

		got, err := f.svc.Get(t.Context(), d.ID)
		require.NoError(t, err)
		require.Equal(t, dm.ApprovalPending, got.ApprovalStatus)
		require.Equal(t, "50.00", f.balance(t))
		require.Zero(t, f.direct.calls.Load())
	})

	t.Run("fail, approving twice", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodDirect, "100")
		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)

		_, err = f.svc.Approve(t.Context(), d.ID, "admin")
		require.ErrorIs(t, err, model.ErrInvalidTransition)
		require.Equal(t, "395.00", f.balance(t))
	})

	t.Run("fail, lock held elsewhere", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodDirect, "100")
		release, err := f.locker.Acquire(t.Context(), lockKey(d.ID), time.Second)
		require.NoError(t, err)
		defer release()

		_, err = f.svc.Approve(t.Context(), d.ID, "admin")
		require.ErrorIs(t, err, model.ErrConcurrentModification)
		require.Equal(t, "500.00", f.balance(t))
	})
}

func TestConcurrentApproveDebitsOnce(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(userID, dec("500"))
	f.direct.delay = 20 * time.Millisecond
	d := f.submit(t, dm.MethodDirect, "100")

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(context.Background(), d.ID, "admin")
			if err == nil {
				ok.Add(1)
				return
			}
			if !errors.Is(err, model.ErrConcurrentModification) && !errors.Is(err, model.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, ok.Load())
	require.EqualValues(t, 1, f.direct.calls.Load())
	require.Equal(t, "395.00", f.balance(t))
}

func TestRetryRecharge(t *testing.T) {
	t.Run("ok, retry does not debit again", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		f.direct.fail(errors.New("platform 500"))
		d := f.submit(t, dm.MethodDirect, "100")

		res, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchFailed, res.Branch)

		res, err = f.svc.RetryRecharge(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchFailed, res.Branch)
		require.Equal(t, 2, res.Deposit.AttemptCount)

		f.direct.fail(nil)
		res, err = f.svc.RetryRecharge(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchCompleted, res.Branch)
		require.Equal(t, 3, res.Deposit.AttemptCount)
		require.Empty(t, res.Deposit.LastError)
		require.Equal(t, "395.00", f.balance(t))

		entries, err := f.ledger.Entries(t.Context(), userID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("ok, retry switches channel after reclassification", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		f.direct.fail(errors.New("down"))
		d := f.submit(t, dm.MethodDirect, "100")
		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)

		f.classes[d.AdAccountID] = dm.MethodManual
		res, err := f.svc.RetryRecharge(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchManual, res.Branch)
		require.Equal(t, dm.MethodManual, res.Deposit.RechargeMethod)
	})

	t.Run("ok, retry drops the cached classification", func(t *testing.T) {
		f := newFixture(t)
		fc := &forgettingClassifier{staticClassifier: f.classes}
		f.svc.classifier = fc
		f.ledger.Seed(userID, dec("500"))
		f.direct.fail(errors.New("down"))
		d := f.submit(t, dm.MethodDirect, "100")

		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Empty(t, fc.forgot)

		f.direct.fail(nil)
		res, err := f.svc.RetryRecharge(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchCompleted, res.Branch)
		require.Equal(t, []int{d.AdAccountID}, fc.forgot)
	})

	t.Run("fail, only failed deposits can be retried", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodDirect, "100")
		_, err := f.svc.RetryRecharge(t.Context(), d.ID, "admin")
		require.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(userID, dec("500"))
	d := f.submit(t, dm.MethodDirect, "100")

	_, err := f.svc.Reject(t.Context(), d.ID, "   ", "admin")
	require.ErrorIs(t, err, model.ErrReasonRequired)

	got, err := f.svc.Reject(t.Context(), d.ID, "wrong account", "admin")
	require.NoError(t, err)
	require.Equal(t, dm.ApprovalRejected, got.ApprovalStatus)
	require.Equal(t, "wrong account", got.RejectReason)
	require.Equal(t, "500.00", f.balance(t))

	_, err = f.svc.Approve(t.Context(), d.ID, "admin")
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRejectAfterInterruptedApproval(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(userID, dec("500"))
	d := f.submit(t, dm.MethodDirect, "100")

	// 扣款成功但审核状态没写入
	_, err := f.ledger.ReserveAndDebit(t.Context(), userID, d.TotalDebited, d.CauseID())
	require.NoError(t, err)
	require.Equal(t, "395.00", f.balance(t))

	_, err = f.svc.Reject(t.Context(), d.ID, "duplicate", "admin")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := f.svc.Get(t.Context(), d.ID)
	require.NoError(t, err)
	require.Equal(t, dm.ApprovalApproved, got.ApprovalStatus)
	require.Equal(t, dm.RechargeFailed, got.RechargeStatus)
	require.Empty(t, got.RejectReason)

	// 可以重试, 且不会重复扣款
	res, err := f.svc.RetryRecharge(t.Context(), d.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, dm.RechargeCompleted, res.Deposit.RechargeStatus)
	require.Equal(t, "395.00", f.balance(t))
}

func TestTruncateKeepsRunes(t *testing.T) {
	long := "x"
	for i := 0; i < 200; i++ {
		long += "充值失败"
	}
	cut := truncate(long, 500)
	require.LessOrEqual(t, len(cut), 500)
	require.True(t, utf8.ValidString(cut))
	require.Equal(t, "abc", truncate("abc", 500))

	f := newFixture(t)
	f.ledger.Seed(userID, dec("500"))
	d := f.submit(t, dm.MethodAgent, "100")
	_, err := f.svc.Approve(t.Context(), d.ID, "admin")
	require.NoError(t, err)

	applied, err := f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 1, Outcome: ReportFailed, Detail: long})
	require.NoError(t, err)
	require.True(t, applied)

	got, err := f.svc.Get(t.Context(), d.ID)
	require.NoError(t, err)
	require.True(t, utf8.ValidString(got.LastError))
	require.LessOrEqual(t, len(got.LastError), 500)
}

func TestForceApprove(t *testing.T) {
	t.Run("ok, distinguishable from adapter completion", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		f.direct.fail(errors.New("rejected"))
		d := f.submit(t, dm.MethodDirect, "100")
		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		calls := f.direct.calls.Load()

		got, err := f.svc.ForceApprove(t.Context(), d.ID, "root", "paid via console")
		require.NoError(t, err)
		require.Equal(t, dm.RechargeCompleted, got.RechargeStatus)
		require.True(t, got.ForceApproved)
		require.Equal(t, "root", got.ForcedBy)
		require.Equal(t, "paid via console", got.AdminRemarks)
		require.Equal(t, calls, f.direct.calls.Load(), "no adapter is contacted")
		require.Equal(t, "395.00", f.balance(t))

		_, history, err := f.svc.Detail(t.Context(), d.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		require.True(t, last.Forced)
		require.Equal(t, string(ActionForceApprove), last.Action)

		forced := true
		logs, _, err := f.audit.List(t.Context(), audit_model.ListQuery{Forced: &forced})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.Equal(t, audit_model.LogTypeForceApprove, logs[0].LogType)

		_, err = f.svc.ForceApprove(t.Context(), d.ID, "root", "")
		require.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("fail, pending deposit cannot be forced", func(t *testing.T) {
		f := newFixture(t)
		d := f.submit(t, dm.MethodDirect, "100")
		_, err := f.svc.ForceApprove(t.Context(), d.ID, "root", "")
		require.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestAgentReports(t *testing.T) {
	t.Run("ok, start then complete exactly once", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodAgent, "100")
		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)

		got, err := f.svc.AgentStart(t.Context(), d.ID, 1)
		require.NoError(t, err)
		require.Equal(t, dm.RechargeInProgress, got.RechargeStatus)

		applied, err := f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 1, Outcome: ReportCompleted})
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 1, Outcome: ReportFailed, Detail: "dup"})
		require.NoError(t, err)
		require.False(t, applied)

		got, err = f.svc.Get(t.Context(), d.ID)
		require.NoError(t, err)
		require.Equal(t, dm.RechargeCompleted, got.RechargeStatus)
	})

	t.Run("ok, report for an older attempt is ignored", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodAgent, "100")
		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)

		applied, err := f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 1, Outcome: ReportFailed, Detail: "captcha"})
		require.NoError(t, err)
		require.True(t, applied)

		res, err := f.svc.RetryRecharge(t.Context(), d.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, BranchQueued, res.Branch)
		require.Equal(t, 2, res.Deposit.AttemptCount)

		applied, err = f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 1, Outcome: ReportCompleted})
		require.NoError(t, err)
		require.False(t, applied)

		applied, err = f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 2, Outcome: ReportCompleted})
		require.NoError(t, err)
		require.True(t, applied)
	})

	t.Run("ok, late report after force approve changes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Seed(userID, dec("500"))
		d := f.submit(t, dm.MethodAgent, "100")
		_, err := f.svc.Approve(t.Context(), d.ID, "admin")
		require.NoError(t, err)

		forced, err := f.svc.ForceApprove(t.Context(), d.ID, "root", "agent stuck")
		require.NoError(t, err)

		applied, err := f.svc.HandleReport(t.Context(), Report{DepositID: d.ID, Attempt: 1, Outcome: ReportFailed, Detail: "late"})
		require.NoError(t, err)
		require.False(t, applied)

		got, err := f.svc.Get(t.Context(), d.ID)
		require.NoError(t, err)
		require.Equal(t, forced.Version, got.Version)
		require.Equal(t, dm.RechargeCompleted, got.RechargeStatus)
		require.True(t, got.ForceApproved)
		require.Empty(t, got.LastError)
	})

	t.Run("fail, unknown outcome", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.HandleReport(t.Context(), Report{DepositID: 1, Attempt: 1, Outcome: "maybe"})
		require.ErrorIs(t, err, ErrInvalidReport)
	})
}

func TestSweepOnce(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(userID, dec("1000"))
	past := time.Now().Add(-time.Hour)
	f.deposits.SetClock(func() time.Time { return past })

	seq := 0
	mk := func(approval dm.ApprovalStatus, recharge dm.RechargeStatus, method dm.RechargeMethod) *dm.DepositRequest {
		seq++
		d := &dm.DepositRequest{
			ApplyNo:           fmt.Sprintf("DPSWEEP%02d", seq),
			UserID:            userID,
			AdAccountID:       1,
			Platform:          dm.PlatformMeta,
			ExternalAccountID: "x",
			Amount:            dec("10"),
			TotalDebited:      dec("10.50"),
			ApprovalStatus:    approval,
			RechargeStatus:    recharge,
			RechargeMethod:    method,
			AttemptCount:      1,
		}
		require.NoError(t, f.deposits.Create(t.Context(), d))
		return d
	}

	directStuck := mk(dm.ApprovalApproved, dm.RechargeInProgress, dm.MethodDirect)
	agentStuck := mk(dm.ApprovalApproved, dm.RechargeInProgress, dm.MethodAgent)
	debitedPending := mk(dm.ApprovalPending, dm.RechargeNone, dm.MethodUnassigned)
	_, err := f.ledger.ReserveAndDebit(t.Context(), userID, debitedPending.TotalDebited, debitedPending.CauseID())
	require.NoError(t, err)
	plainPending := mk(dm.ApprovalPending, dm.RechargeNone, dm.MethodUnassigned)
	lockedPending := mk(dm.ApprovalPending, dm.RechargeNone, dm.MethodUnassigned)
	_, err = f.ledger.ReserveAndDebit(t.Context(), userID, lockedPending.TotalDebited, lockedPending.CauseID())
	require.NoError(t, err)
	f.deposits.SetClock(time.Now)

	release, err := f.locker.Acquire(t.Context(), lockKey(lockedPending.ID), time.Second)
	require.NoError(t, err)
	stats, err := f.svc.SweepOnce(t.Context())
	release()
	require.NoError(t, err)
	require.Equal(t, SweepStats{Scanned: 3, Recovered: 2, Skipped: 1}, stats)

	get := func(id int) *dm.DepositRequest {
		d, err := f.svc.Get(t.Context(), id)
		require.NoError(t, err)
		return d
	}
	require.Equal(t, dm.RechargeFailed, get(directStuck.ID).RechargeStatus)
	require.Equal(t, "recharge interrupted", get(directStuck.ID).LastError)
	require.Equal(t, dm.RechargeInProgress, get(agentStuck.ID).RechargeStatus)

	recovered := get(debitedPending.ID)
	require.Equal(t, dm.ApprovalApproved, recovered.ApprovalStatus)
	require.Equal(t, dm.RechargeFailed, recovered.RechargeStatus)
	require.Equal(t, dm.ApprovalPending, get(plainPending.ID).ApprovalStatus)

	// 修复后的申请可以正常重试, 不会再次扣款
	f.classes[1] = dm.MethodDirect
	require.NoError(t, f.accounts.Create(t.Context(), &dm.AdAccount{UserID: userID, Platform: dm.PlatformMeta, ExternalID: "x"}))
	res, err := f.svc.RetryRecharge(t.Context(), debitedPending.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, BranchCompleted, res.Branch)
	require.Equal(t, "979.00", f.balance(t))

	// 锁释放后, 上一轮跳过的申请在下一轮被修复
	stats, err = f.svc.SweepOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, SweepStats{Scanned: 1, Recovered: 1}, stats)
	require.Equal(t, dm.RechargeFailed, get(lockedPending.ID).RechargeStatus)
}

func TestReportHandler(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(userID, dec("500"))
	d := f.submit(t, dm.MethodAgent, "100")
	_, err := f.svc.Approve(t.Context(), d.ID, "admin")
	require.NoError(t, err)

	h := f.svc.ReportHandler()
	require.Error(t, h(t.Context(), []byte("{")))
	require.NoError(t, h(t.Context(), []byte(`{"deposit_id":1,"attempt":1,"outcome":"completed"}`)))

	got, err := f.svc.Get(t.Context(), d.ID)
	require.NoError(t, err)
	require.Equal(t, dm.RechargeCompleted, got.RechargeStatus)
}
