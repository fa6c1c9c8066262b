// Package repotest holds storage contract tests shared by every repository implementation.
package repotest

import (
	"sync"
	"testing"

	"adrecharge-admin/model/wallet_model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// LedgerSetupFunc 返回一个空账本, 以及为用户设置初始余额的方法
type LedgerSetupFunc func(t *testing.T) (wallet_model.Ledger, func(userID int, balance decimal.Decimal))

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// TestLedgerContract 账本实现必须满足的行为
func TestLedgerContract(t *testing.T, setup LedgerSetupFunc) {
	t.Run("ok, debit reduces balance", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("500"))

		rc, err := ledger.ReserveAndDebit(t.Context(), 1, d("105"), "deposit:1")
		require.NoError(t, err)
		require.False(t, rc.Replayed)
		require.True(t, rc.Entry.BalanceBefore.Equal(d("500")))
		require.True(t, rc.Entry.BalanceAfter.Equal(d("395")))

		w, err := ledger.Wallet(t.Context(), 1)
		require.NoError(t, err)
		require.True(t, w.Balance.Equal(d("395")), "balance %s", w.Balance)
	})

	t.Run("ok, same cause debits once", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("500"))

		first, err := ledger.ReserveAndDebit(t.Context(), 1, d("105"), "deposit:7")
		require.NoError(t, err)
		again, err := ledger.ReserveAndDebit(t.Context(), 1, d("105"), "deposit:7")
		require.NoError(t, err)
		require.True(t, again.Replayed)
		require.Equal(t, first.Entry.ID, again.Entry.ID)

		w, err := ledger.Wallet(t.Context(), 1)
		require.NoError(t, err)
		require.True(t, w.Balance.Equal(d("395")))
	})

	t.Run("ok, concurrent debits with same cause apply once", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("500"))

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = ledger.ReserveAndDebit(t.Context(), 1, d("105"), "deposit:9")
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		w, err := ledger.Wallet(t.Context(), 1)
		require.NoError(t, err)
		require.True(t, w.Balance.Equal(d("395")), "balance %s", w.Balance)
	})

	t.Run("fail, insufficient funds leaves wallet untouched", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(2, d("50"))

		before, err := ledger.Wallet(t.Context(), 2)
		require.NoError(t, err)

		_, err = ledger.ReserveAndDebit(t.Context(), 2, d("105"), "deposit:3")
		require.ErrorIs(t, err, wallet_model.ErrInsufficientFunds)

		after, err := ledger.Wallet(t.Context(), 2)
		require.NoError(t, err)
		require.True(t, after.Balance.Equal(d("50")))
		require.Equal(t, before.Version, after.Version)

		entry, err := ledger.FindEntry(t.Context(), "deposit:3", wallet_model.DirectionDebit)
		require.NoError(t, err)
		require.Nil(t, entry)
	})

	t.Run("fail, debit on missing wallet", func(t *testing.T) {
		ledger, _ := setup(t)
		_, err := ledger.ReserveAndDebit(t.Context(), 404, d("1"), "deposit:404")
		require.ErrorIs(t, err, wallet_model.ErrInsufficientFunds)
	})

	t.Run("fail, replay with different amount", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("500"))

		_, err := ledger.ReserveAndDebit(t.Context(), 1, d("10"), "deposit:11")
		require.NoError(t, err)
		_, err = ledger.ReserveAndDebit(t.Context(), 1, d("20"), "deposit:11")
		require.ErrorIs(t, err, wallet_model.ErrIdempotencyMismatch)
	})

	t.Run("fail, invalid request", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("500"))

		_, err := ledger.ReserveAndDebit(t.Context(), 1, d("0"), "deposit:12")
		require.ErrorIs(t, err, wallet_model.ErrInvalidAmount)
		_, err = ledger.Credit(t.Context(), 1, d("5"), "")
		require.ErrorIs(t, err, wallet_model.ErrEmptyCause)
	})

	t.Run("ok, credit is idempotent and creates wallet", func(t *testing.T) {
		ledger, _ := setup(t)

		_, err := ledger.Credit(t.Context(), 5, d("30"), "refund:R1")
		require.NoError(t, err)
		rc, err := ledger.Credit(t.Context(), 5, d("30"), "refund:R1")
		require.NoError(t, err)
		require.True(t, rc.Replayed)

		w, err := ledger.Wallet(t.Context(), 5)
		require.NoError(t, err)
		require.True(t, w.Balance.Equal(d("30")))
	})

	t.Run("ok, debit and credit share a cause independently", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("100"))

		_, err := ledger.ReserveAndDebit(t.Context(), 1, d("40"), "admin:X")
		require.NoError(t, err)
		_, err = ledger.Credit(t.Context(), 1, d("40"), "admin:X")
		require.NoError(t, err)

		w, err := ledger.Wallet(t.Context(), 1)
		require.NoError(t, err)
		require.True(t, w.Balance.Equal(d("100")))

		entries, err := ledger.Entries(t.Context(), 1, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
	})

	t.Run("ok, version increases on every mutation", func(t *testing.T) {
		ledger, seed := setup(t)
		seed(1, d("100"))

		w0, err := ledger.Wallet(t.Context(), 1)
		require.NoError(t, err)
		_, err = ledger.ReserveAndDebit(t.Context(), 1, d("1"), "v:1")
		require.NoError(t, err)
		w1, err := ledger.Wallet(t.Context(), 1)
		require.NoError(t, err)
		require.Greater(t, w1.Version, w0.Version)
	})
}
