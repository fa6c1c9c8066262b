package inmem

import (
	"testing"

	"adrecharge-admin/model"
	"adrecharge-admin/model/application_model"
	"adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/repository/repotest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	repotest.TestLedgerContract(t, func(t *testing.T) (wallet_model.Ledger, func(int, decimal.Decimal)) {
		l := NewLedger()
		return l, l.Seed
	})
}

func TestDepositRepository(t *testing.T) {
	repotest.TestDepositRepositoryContract(t, func(t *testing.T) deposit_model.Repository {
		return NewDepositRepository()
	})
}

func TestApplicationReviewCreatesAccounts(t *testing.T) {
	accounts := NewAdAccountRepository()
	apps := NewApplicationRepository(accounts)

	app := &application_model.AccountApplication{
		ApplyNo:  "AP1",
		UserID:   3,
		Platform: deposit_model.PlatformTikTok,
		Status:   application_model.StatusPending,
	}
	require.NoError(t, apps.Create(t.Context(), app))

	app.Status = application_model.StatusApproved
	err := apps.Review(t.Context(), app, 0, []deposit_model.AdAccount{
		{UserID: 3, Platform: deposit_model.PlatformTikTok, ExternalID: "tt-1"},
		{UserID: 3, Platform: deposit_model.PlatformTikTok, ExternalID: "tt-2"},
	})
	require.NoError(t, err)

	list, err := accounts.ListByUser(t.Context(), 3)
	require.NoError(t, err)
	require.Len(t, list, 2)

	err = apps.Review(t.Context(), app, 0, nil)
	require.ErrorIs(t, err, model.ErrConcurrentModification)
}
