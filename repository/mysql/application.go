package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/application_model"
	"adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/refund_model"

	"gorm.io/gorm"
)

type applicationRepo struct {
	db *gorm.DB
}

// NewApplicationRepository 创建开户申请仓储
func NewApplicationRepository(db *gorm.DB) application_model.Repository {
	return &applicationRepo{db: db}
}

func (r *applicationRepo) Create(ctx context.Context, a *application_model.AccountApplication) error {
	now := time.Now()
	a.CreateTime = now
	a.UpdateTime = now
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *applicationRepo) Get(ctx context.Context, id int) (*application_model.AccountApplication, error) {
	var a application_model.AccountApplication
	err := r.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *applicationRepo) GetMany(ctx context.Context, ids []int) (map[int]*application_model.AccountApplication, error) {
	out := make(map[int]*application_model.AccountApplication, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []application_model.AccountApplication
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

func (r *applicationRepo) Review(ctx context.Context, a *application_model.AccountApplication, expectedVersion int64, accounts []deposit_model.AdAccount) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&application_model.AccountApplication{}).
			Where("id = ? AND version = ?", a.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":        a.Status,
				"reject_reason": a.RejectReason,
				"refunded":      a.Refunded,
				"reviewed_by":   a.ReviewedBy,
				"version":       expectedVersion + 1,
				"update_time":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("update application: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrConcurrentModification
		}

		for i := range accounts {
			accounts[i].CreateTime = now
			accounts[i].UpdateTime = now
		}
		if len(accounts) > 0 {
			if err := tx.Create(&accounts).Error; err != nil {
				return fmt.Errorf("bind ad accounts: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.Version = expectedVersion + 1
	a.UpdateTime = now
	return nil
}

type refundRepo struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款申请仓储
func NewRefundRepository(db *gorm.DB) refund_model.Repository {
	return &refundRepo{db: db}
}

func (r *refundRepo) Create(ctx context.Context, req *refund_model.RefundRequest) error {
	now := time.Now()
	req.CreateTime = now
	req.UpdateTime = now
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *refundRepo) Get(ctx context.Context, id int) (*refund_model.RefundRequest, error) {
	var req refund_model.RefundRequest
	err := r.db.WithContext(ctx).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *refundRepo) Update(ctx context.Context, req *refund_model.RefundRequest, expectedVersion int64) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&refund_model.RefundRequest{}).
		Where("id = ? AND version = ?", req.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":        req.Status,
			"reject_reason": req.RejectReason,
			"reviewed_by":   req.ReviewedBy,
			"version":       expectedVersion + 1,
			"update_time":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrConcurrentModification
	}
	req.Version = expectedVersion + 1
	req.UpdateTime = now
	return nil
}
