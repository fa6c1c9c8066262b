package mysql

import (
	"os"
	"testing"
	"time"

	"adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/config"
	"adrecharge-admin/pkg/database"
	"adrecharge-admin/repository/repotest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB 需要 MYSQL_TEST_DSN 指向一个可清空的测试库
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	db, err := database.Open(config.DatabaseConfig{
		DSN:             dsn,
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Minute,
		LogLevel:        "silent",
		LogDir:          t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range Models() {
		require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error)
	}
	return db
}

func TestLedger(t *testing.T) {
	repotest.TestLedgerContract(t, func(t *testing.T) (wallet_model.Ledger, func(int, decimal.Decimal)) {
		db := openTestDB(t)
		seed := func(userID int, balance decimal.Decimal) {
			now := time.Now()
			require.NoError(t, db.Save(&wallet_model.Wallet{
				UserID: userID, Balance: balance, Version: 1, CreateTime: now, UpdateTime: now,
			}).Error)
		}
		return NewLedger(db), seed
	})
}

func TestDepositRepository(t *testing.T) {
	repotest.TestDepositRepositoryContract(t, func(t *testing.T) deposit_model.Repository {
		return NewDepositRepository(openTestDB(t))
	})
}

func TestCommissionRateUpsert(t *testing.T) {
	db := openTestDB(t)
	repo := NewCommissionRateRepository(db)

	require.NoError(t, repo.Upsert(t.Context(), &deposit_model.CommissionRate{
		UserID: 1, Platform: deposit_model.PlatformMeta, Rate: decimal.NewFromInt(5),
	}))
	require.NoError(t, repo.Upsert(t.Context(), &deposit_model.CommissionRate{
		UserID: 1, Platform: deposit_model.PlatformMeta, Rate: decimal.NewFromInt(7),
	}))

	rate, ok, err := repo.Rate(t.Context(), 1, deposit_model.PlatformMeta)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rate.Equal(decimal.NewFromInt(7)))
}
