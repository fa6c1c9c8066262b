package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/database"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledger struct {
	db *gorm.DB
}

// NewLedger 创建钱包账本
func NewLedger(db *gorm.DB) wallet_model.Ledger {
	return &ledger{db: db}
}

func (l *ledger) ReserveAndDebit(ctx context.Context, userID int, amount decimal.Decimal, causeID string) (*wallet_model.Receipt, error) {
	return l.apply(ctx, userID, amount, causeID, wallet_model.DirectionDebit)
}

func (l *ledger) Credit(ctx context.Context, userID int, amount decimal.Decimal, causeID string) (*wallet_model.Receipt, error) {
	return l.apply(ctx, userID, amount, causeID, wallet_model.DirectionCredit)
}

// apply 单个事务内: 锁钱包行 -> 查重 -> 校验余额 -> 写流水 -> 更新余额
func (l *ledger) apply(ctx context.Context, userID int, amount decimal.Decimal, causeID string, dir wallet_model.Direction) (*wallet_model.Receipt, error) {
	if err := wallet_model.ValidateRequest(amount, causeID); err != nil {
		return nil, err
	}

	var receipt *wallet_model.Receipt
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if dir == wallet_model.DirectionCredit {
			w := wallet_model.Wallet{UserID: userID, Balance: decimal.Zero, CreateTime: now, UpdateTime: now}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).Create(&w).Error; err != nil {
				return fmt.Errorf("ensure wallet: %w", err)
			}
		}

		var w wallet_model.Wallet
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Take(&w).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return l.replayOr(tx, userID, amount, causeID, dir, &receipt, wallet_model.ErrInsufficientFunds)
		}
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		var existing wallet_model.Entry
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cause_id = ? AND direction = ?", causeID, dir).
			Take(&existing).Error
		if err == nil {
			r, err := wallet_model.CheckReplay(&existing, userID, amount)
			receipt = r
			return err
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find entry: %w", err)
		}

		before := w.Balance
		after := before.Add(amount)
		if dir == wallet_model.DirectionDebit {
			if before.LessThan(amount) {
				return wallet_model.ErrInsufficientFunds
			}
			after = before.Sub(amount)
		}

		entry := wallet_model.Entry{
			UserID:        userID,
			CauseID:       causeID,
			Direction:     dir,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			CreateTime:    now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		res := tx.Model(&wallet_model.Wallet{}).
			Where("user_id = ? AND version = ?", userID, w.Version).
			Updates(map[string]interface{}{
				"balance":     after,
				"version":     gorm.Expr("version + 1"),
				"update_time": now,
			})
		if res.Error != nil {
			return fmt.Errorf("update wallet: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrConcurrentModification
		}

		receipt = &wallet_model.Receipt{Entry: entry}
		return nil
	})

	if err != nil && database.IsDuplicateKey(err) {
		// 另一个事务先写入了同一 cause
		existing, findErr := l.FindEntry(ctx, causeID, dir)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return wallet_model.CheckReplay(existing, userID, amount)
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// replayOr 钱包不存在时, cause 可能已被其他用户使用
func (l *ledger) replayOr(tx *gorm.DB, userID int, amount decimal.Decimal, causeID string, dir wallet_model.Direction, out **wallet_model.Receipt, fallback error) error {
	var existing wallet_model.Entry
	err := tx.Where("cause_id = ? AND direction = ?", causeID, dir).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback
	}
	if err != nil {
		return err
	}
	r, err := wallet_model.CheckReplay(&existing, userID, amount)
	*out = r
	return err
}

func (l *ledger) Wallet(ctx context.Context, userID int) (*wallet_model.Wallet, error) {
	var w wallet_model.Wallet
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wallet_model.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (l *ledger) FindEntry(ctx context.Context, causeID string, direction wallet_model.Direction) (*wallet_model.Entry, error) {
	var e wallet_model.Entry
	err := l.db.WithContext(ctx).
		Where("cause_id = ? AND direction = ?", causeID, direction).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (l *ledger) Entries(ctx context.Context, userID int, limit int) ([]wallet_model.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []wallet_model.Entry
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
