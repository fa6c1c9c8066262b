package wallet_service

import (
	"testing"

	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/repository/inmem"
	"adrecharge-admin/services/audit_service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAdminAdjust(t *testing.T) {
	ledger := inmem.NewLedger()
	rec := audit_service.NewMemoryRecorder()
	svc := NewService(ledger, rec, nil)

	_, err := svc.AdminAdjust(t.Context(), 1, decimal.NewFromInt(100), "", "root", "")
	require.ErrorIs(t, err, ErrReferenceRequired)

	r, err := svc.AdminAdjust(t.Context(), 1, decimal.NewFromInt(100), "topup-1", "root", "bank transfer")
	require.NoError(t, err)
	require.False(t, r.Replayed)

	r, err = svc.AdminAdjust(t.Context(), 1, decimal.NewFromInt(100), "topup-1", "root", "bank transfer")
	require.NoError(t, err)
	require.True(t, r.Replayed)

	_, err = svc.AdminAdjust(t.Context(), 1, decimal.RequireFromString("-30.25"), "fix-1", "root", "")
	require.NoError(t, err)

	_, err = svc.AdminAdjust(t.Context(), 1, decimal.NewFromInt(-1000), "fix-2", "root", "")
	require.ErrorIs(t, err, wallet_model.ErrInsufficientFunds)

	sum, err := svc.Summary(t.Context(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, "69.75", sum.Wallet.Balance.StringFixed(2))
	require.Len(t, sum.Entries, 2)
	require.Len(t, rec.Logs(), 2)
}

func TestSummaryMissingWallet(t *testing.T) {
	svc := NewService(inmem.NewLedger(), nil, nil)
	sum, err := svc.Summary(t.Context(), 77, 10)
	require.NoError(t, err)
	require.True(t, sum.Wallet.Balance.IsZero())
	require.Empty(t, sum.Entries)
}
