package inmem

import (
	"context"
	"sync"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/application_model"
	"adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/refund_model"
)

// ApplicationRepository 进程内开户申请存储, 审核时写入共享的广告账户存储
type ApplicationRepository struct {
	mu       sync.RWMutex
	rows     map[int]*application_model.AccountApplication
	nextID   int
	accounts *AdAccountRepository
}

var _ application_model.Repository = (*ApplicationRepository)(nil)

func NewApplicationRepository(accounts *AdAccountRepository) *ApplicationRepository {
	return &ApplicationRepository{
		rows:     make(map[int]*application_model.AccountApplication),
		accounts: accounts,
	}
}

func (r *ApplicationRepository) Create(_ context.Context, a *application_model.AccountApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now()
	a.ID = r.nextID
	a.CreateTime = now
	a.UpdateTime = now
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *ApplicationRepository) Get(_ context.Context, id int) (*application_model.AccountApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *ApplicationRepository) GetMany(_ context.Context, ids []int) (map[int]*application_model.AccountApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]*application_model.AccountApplication, len(ids))
	for _, id := range ids {
		if a, ok := r.rows[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *ApplicationRepository) Review(_ context.Context, a *application_model.AccountApplication, expectedVersion int64, accounts []deposit_model.AdAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[a.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return model.ErrConcurrentModification
	}

	r.accounts.mu.Lock()
	for i := range accounts {
		r.accounts.insert(&accounts[i])
	}
	r.accounts.mu.Unlock()

	a.Version = expectedVersion + 1
	a.UpdateTime = time.Now()
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

// RefundRepository 进程内退款申请存储
type RefundRepository struct {
	mu     sync.RWMutex
	rows   map[int]*refund_model.RefundRequest
	nextID int
}

var _ refund_model.Repository = (*RefundRepository)(nil)

func NewRefundRepository() *RefundRepository {
	return &RefundRepository{rows: make(map[int]*refund_model.RefundRequest)}
}

func (r *RefundRepository) Create(_ context.Context, req *refund_model.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now()
	req.ID = r.nextID
	req.CreateTime = now
	req.UpdateTime = now
	cp := *req
	r.rows[req.ID] = &cp
	return nil
}

func (r *RefundRepository) Get(_ context.Context, id int) (*refund_model.RefundRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *RefundRepository) Update(_ context.Context, req *refund_model.RefundRequest, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[req.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return model.ErrConcurrentModification
	}
	req.Version = expectedVersion + 1
	req.UpdateTime = time.Now()
	cp := *req
	r.rows[req.ID] = &cp
	return nil
}
