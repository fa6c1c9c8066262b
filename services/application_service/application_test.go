package application_service

import (
	"testing"

	"adrecharge-admin/model"
	"adrecharge-admin/model/application_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/repository/inmem"
	"adrecharge-admin/services/audit_service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	ledger   *inmem.Ledger
	accounts *inmem.AdAccountRepository
}

func newFixture(fee string) *fixture {
	accounts := inmem.NewAdAccountRepository()
	ledger := inmem.NewLedger()
	svc := NewService(inmem.NewApplicationRepository(accounts), ledger, nil,
		audit_service.NewMemoryRecorder(), nil, decimal.RequireFromString(fee), 3)
	return &fixture{svc: svc, ledger: ledger, accounts: accounts}
}

func (f *fixture) balance(t *testing.T, uid int) string {
	w, err := f.ledger.Wallet(t.Context(), uid)
	require.NoError(t, err)
	return w.Balance.StringFixed(2)
}

func TestSubmit(t *testing.T) {
	t.Run("ok, fee debited per account", func(t *testing.T) {
		f := newFixture("25")
		f.ledger.Seed(1, decimal.NewFromInt(100))

		a, err := f.svc.Submit(t.Context(), SubmitInput{UserID: 1, Platform: dm.PlatformMeta, AccountName: "shop", AccountCount: 2})
		require.NoError(t, err)
		require.Equal(t, "50.00", a.OpeningFee.StringFixed(2))
		require.Equal(t, application_model.StatusPending, a.Status)
		require.Equal(t, "50.00", f.balance(t, 1))
	})

	t.Run("fail, insufficient funds creates nothing", func(t *testing.T) {
		f := newFixture("25")
		f.ledger.Seed(1, decimal.NewFromInt(10))
		_, err := f.svc.Submit(t.Context(), SubmitInput{UserID: 1, Platform: dm.PlatformMeta, AccountName: "shop"})
		require.ErrorIs(t, err, wallet_model.ErrInsufficientFunds)
	})

	t.Run("fail, too many accounts", func(t *testing.T) {
		f := newFixture("0")
		_, err := f.svc.Submit(t.Context(), SubmitInput{UserID: 1, Platform: dm.PlatformMeta, AccountName: "shop", AccountCount: 4})
		require.ErrorIs(t, err, ErrTooManyAccount)
	})
}

func TestApprove(t *testing.T) {
	f := newFixture("0")
	a, err := f.svc.Submit(t.Context(), SubmitInput{UserID: 5, Platform: dm.PlatformGoogle, AccountName: "brand"})
	require.NoError(t, err)

	_, err = f.svc.Approve(t.Context(), a.ID, nil, "admin")
	require.ErrorIs(t, err, ErrNoBindings)

	_, err = f.svc.Approve(t.Context(), a.ID, []AccountBinding{{ExternalID: "  "}}, "admin")
	require.Error(t, err)

	got, err := f.svc.Approve(t.Context(), a.ID, []AccountBinding{
		{ExternalID: "123-456", ExternalName: "Brand A", AutomationEnabled: true},
	}, "admin")
	require.NoError(t, err)
	require.Equal(t, application_model.StatusApproved, got.Status)

	list, err := f.accounts.ListByUser(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, dm.PlatformGoogle, list[0].Platform)
	require.True(t, list[0].AutomationEnabled)
	require.Equal(t, a.ID, list[0].ApplicationID)

	_, err = f.svc.Approve(t.Context(), a.ID, []AccountBinding{{ExternalID: "x"}}, "admin")
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestReject(t *testing.T) {
	t.Run("ok, refund returns the fee once", func(t *testing.T) {
		f := newFixture("30")
		f.ledger.Seed(1, decimal.NewFromInt(100))
		a, err := f.svc.Submit(t.Context(), SubmitInput{UserID: 1, Platform: dm.PlatformTikTok, AccountName: "n"})
		require.NoError(t, err)
		require.Equal(t, "70.00", f.balance(t, 1))

		got, err := f.svc.Reject(t.Context(), a.ID, "incomplete docs", true, "admin")
		require.NoError(t, err)
		require.True(t, got.Refunded)
		require.Equal(t, "100.00", f.balance(t, 1))

		_, err = f.svc.Reject(t.Context(), a.ID, "again", true, "admin")
		require.ErrorIs(t, err, model.ErrInvalidTransition)
		require.Equal(t, "100.00", f.balance(t, 1))
	})

	t.Run("ok, without refund keeps the fee", func(t *testing.T) {
		f := newFixture("30")
		f.ledger.Seed(1, decimal.NewFromInt(100))
		a, err := f.svc.Submit(t.Context(), SubmitInput{UserID: 1, Platform: dm.PlatformTikTok, AccountName: "n"})
		require.NoError(t, err)

		got, err := f.svc.Reject(t.Context(), a.ID, "spam", false, "admin")
		require.NoError(t, err)
		require.False(t, got.Refunded)
		require.Equal(t, "70.00", f.balance(t, 1))
	})

	t.Run("fail, reason required", func(t *testing.T) {
		f := newFixture("0")
		_, err := f.svc.Reject(t.Context(), 1, " ", false, "admin")
		require.ErrorIs(t, err, model.ErrReasonRequired)
	})
}
