package mysql

import (
	"adrecharge-admin/model/application_model"
	"adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/refund_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/database"

	"gorm.io/gorm"
)

// Models 需要迁移的表
func Models() []interface{} {
	return []interface{}{
		&wallet_model.Wallet{},
		&wallet_model.Entry{},
		&deposit_model.AdAccount{},
		&deposit_model.DepositRequest{},
		&deposit_model.StatusHistory{},
		&deposit_model.CommissionRate{},
		&application_model.AccountApplication{},
		&refund_model.RefundRequest{},
	}
}

// Migrate 自动迁移全部表结构
func Migrate(db *gorm.DB) error {
	return database.AutoMigrate(db, Models()...)
}
