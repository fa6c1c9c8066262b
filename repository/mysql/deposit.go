package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/deposit_model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type depositRepo struct {
	db *gorm.DB
}

// NewDepositRepository 创建充值申请仓储
func NewDepositRepository(db *gorm.DB) deposit_model.Repository {
	return &depositRepo{db: db}
}

func (r *depositRepo) Create(ctx context.Context, d *deposit_model.DepositRequest) error {
	now := time.Now()
	d.CreateTime = now
	d.UpdateTime = now
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *depositRepo) Get(ctx context.Context, id int) (*deposit_model.DepositRequest, error) {
	var d deposit_model.DepositRequest
	err := r.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *depositRepo) GetMany(ctx context.Context, ids []int) (map[int]*deposit_model.DepositRequest, error) {
	out := make(map[int]*deposit_model.DepositRequest, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []deposit_model.DepositRequest
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

func (r *depositRepo) List(ctx context.Context, f deposit_model.ListFilter) ([]deposit_model.DepositRequest, int64, error) {
	f.Normalize()
	q := r.db.WithContext(ctx).Model(&deposit_model.DepositRequest{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ApprovalStatus != "" {
		q = q.Where("approval_status = ?", f.ApprovalStatus)
	}
	if f.RechargeStatus != "" {
		q = q.Where("recharge_status = ?", f.RechargeStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []deposit_model.DepositRequest
	if err := q.Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *depositRepo) Transition(ctx context.Context, d *deposit_model.DepositRequest, expectedVersion int64, h *deposit_model.StatusHistory) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&deposit_model.DepositRequest{}).
			Where("id = ? AND version = ?", d.ID, expectedVersion).
			Updates(map[string]interface{}{
				"approval_status": d.ApprovalStatus,
				"recharge_status": d.RechargeStatus,
				"recharge_method": d.RechargeMethod,
				"attempt_count":   d.AttemptCount,
				"last_error":      d.LastError,
				"force_approved":  d.ForceApproved,
				"forced_by":       d.ForcedBy,
				"reject_reason":   d.RejectReason,
				"approved_by":     d.ApprovedBy,
				"approved_at":     d.ApprovedAt,
				"admin_remarks":   d.AdminRemarks,
				"version":         expectedVersion + 1,
				"update_time":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("update deposit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&deposit_model.DepositRequest{}).Where("id = ?", d.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return model.ErrNotFound
			}
			return model.ErrConcurrentModification
		}

		if h != nil {
			h.DepositID = d.ID
			h.CreateTime = now
			if err := tx.Create(h).Error; err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.Version = expectedVersion + 1
	d.UpdateTime = now
	return nil
}

func (r *depositRepo) History(ctx context.Context, id int) ([]deposit_model.StatusHistory, error) {
	var list []deposit_model.StatusHistory
	if err := r.db.WithContext(ctx).
		Where("deposit_id = ?", id).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *depositRepo) ListStale(ctx context.Context, q deposit_model.StaleQuery) ([]deposit_model.DepositRequest, error) {
	db := r.db.WithContext(ctx).
		Where("approval_status = ? AND recharge_status = ? AND update_time < ?", q.Approval, q.Recharge, q.UpdatedBefore)
	if q.Method != "" {
		db = db.Where("recharge_method = ?", q.Method)
	}
	if q.AfterID > 0 {
		db = db.Where("id > ?", q.AfterID)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var list []deposit_model.DepositRequest
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

type adAccountRepo struct {
	db *gorm.DB
}

// NewAdAccountRepository 创建广告账户仓储
func NewAdAccountRepository(db *gorm.DB) deposit_model.AdAccountRepository {
	return &adAccountRepo{db: db}
}

func (r *adAccountRepo) Create(ctx context.Context, a *deposit_model.AdAccount) error {
	now := time.Now()
	a.CreateTime = now
	a.UpdateTime = now
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *adAccountRepo) Get(ctx context.Context, id int) (*deposit_model.AdAccount, error) {
	var a deposit_model.AdAccount
	err := r.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *adAccountRepo) GetMany(ctx context.Context, ids []int) (map[int]*deposit_model.AdAccount, error) {
	out := make(map[int]*deposit_model.AdAccount, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []deposit_model.AdAccount
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

func (r *adAccountRepo) ListByUser(ctx context.Context, userID int) ([]deposit_model.AdAccount, error) {
	var list []deposit_model.AdAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *adAccountRepo) UpdateCachedBalance(ctx context.Context, id int, balance decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&deposit_model.AdAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"cached_balance": balance, "update_time": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

type commissionRateRepo struct {
	db *gorm.DB
}

// NewCommissionRateRepository 创建手续费率仓储
func NewCommissionRateRepository(db *gorm.DB) deposit_model.CommissionRateRepository {
	return &commissionRateRepo{db: db}
}

func (r *commissionRateRepo) Rate(ctx context.Context, userID int, platform deposit_model.Platform) (decimal.Decimal, bool, error) {
	var c deposit_model.CommissionRate
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return c.Rate, true, nil
}

func (r *commissionRateRepo) Upsert(ctx context.Context, c *deposit_model.CommissionRate) error {
	c.UpdateTime = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "update_time"}),
	}).Create(c).Error
}
