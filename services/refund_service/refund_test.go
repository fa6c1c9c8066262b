package refund_service

import (
	"testing"

	"adrecharge-admin/model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/refund_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/money"
	"adrecharge-admin/repository/inmem"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, *inmem.Ledger, int) {
	t.Helper()
	accounts := inmem.NewAdAccountRepository()
	a := &dm.AdAccount{UserID: 9, Platform: dm.PlatformSnapchat, ExternalID: "snap-1"}
	require.NoError(t, accounts.Create(t.Context(), a))
	ledger := inmem.NewLedger()
	return NewService(inmem.NewRefundRepository(), accounts, ledger, nil, nil, nil), ledger, a.ID
}

func TestRefundApprove(t *testing.T) {
	svc, ledger, accountID := setup(t)

	r, err := svc.Submit(t.Context(), 9, accountID, decimal.RequireFromString("40.5"), "campaign ended")
	require.NoError(t, err)
	require.Equal(t, refund_model.StatusPending, r.Status)

	got, err := svc.Approve(t.Context(), r.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, refund_model.StatusApproved, got.Status)

	w, err := ledger.Wallet(t.Context(), 9)
	require.NoError(t, err)
	require.Equal(t, "40.50", w.Balance.StringFixed(2))

	_, err = svc.Approve(t.Context(), r.ID, "admin")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	entry, err := ledger.FindEntry(t.Context(), r.CauseID(), wallet_model.DirectionCredit)
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestRefundReject(t *testing.T) {
	svc, ledger, accountID := setup(t)
	r, err := svc.Submit(t.Context(), 9, accountID, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	_, err = svc.Reject(t.Context(), r.ID, "", "admin")
	require.ErrorIs(t, err, model.ErrReasonRequired)

	got, err := svc.Reject(t.Context(), r.ID, "balance already spent", "admin")
	require.NoError(t, err)
	require.Equal(t, refund_model.StatusRejected, got.Status)

	_, err = ledger.Wallet(t.Context(), 9)
	require.ErrorIs(t, err, wallet_model.ErrWalletNotFound)
}

func TestRefundRejectAfterCredit(t *testing.T) {
	svc, ledger, accountID := setup(t)
	r, err := svc.Submit(t.Context(), 9, accountID, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	// 模拟入账成功但状态未写入
	_, err = ledger.Credit(t.Context(), 9, r.Amount, r.CauseID())
	require.NoError(t, err)

	_, err = svc.Reject(t.Context(), r.ID, "no", "admin")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := svc.Approve(t.Context(), r.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, refund_model.StatusApproved, got.Status)
	w, err := ledger.Wallet(t.Context(), 9)
	require.NoError(t, err)
	require.Equal(t, "10.00", w.Balance.StringFixed(2))
}

func TestRefundSubmitValidation(t *testing.T) {
	svc, _, accountID := setup(t)
	_, err := svc.Submit(t.Context(), 9, accountID, decimal.RequireFromString("-1"), "")
	require.ErrorIs(t, err, money.ErrInvalidAmount)

	_, err = svc.Submit(t.Context(), 10, accountID, decimal.NewFromInt(1), "")
	require.ErrorIs(t, err, ErrAccountNotOwned)
}
