package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"adrecharge-admin/model"
	"adrecharge-admin/model/deposit_model"

	"github.com/shopspring/decimal"
)

// DepositRepository 进程内充值申请存储
type DepositRepository struct {
	mu      sync.RWMutex
	rows    map[int]*deposit_model.DepositRequest
	history map[int][]deposit_model.StatusHistory
	nextID  int
	histID  int64
	now     func() time.Time
}

var _ deposit_model.Repository = (*DepositRepository)(nil)

func NewDepositRepository() *DepositRepository {
	return &DepositRepository{
		rows:    make(map[int]*deposit_model.DepositRequest),
		history: make(map[int][]deposit_model.StatusHistory),
		now:     time.Now,
	}
}

func (r *DepositRepository) Create(_ context.Context, d *deposit_model.DepositRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.now()
	d.ID = r.nextID
	d.CreateTime = now
	d.UpdateTime = now
	cp := *d
	r.rows[d.ID] = &cp
	return nil
}

func (r *DepositRepository) Get(_ context.Context, id int) (*deposit_model.DepositRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *DepositRepository) GetMany(_ context.Context, ids []int) (map[int]*deposit_model.DepositRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]*deposit_model.DepositRequest, len(ids))
	for _, id := range ids {
		if d, ok := r.rows[id]; ok {
			cp := *d
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *DepositRepository) List(_ context.Context, f deposit_model.ListFilter) ([]deposit_model.DepositRequest, int64, error) {
	f.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []deposit_model.DepositRequest
	for _, d := range r.rows {
		if f.UserID != 0 && d.UserID != f.UserID {
			continue
		}
		if f.ApprovalStatus != "" && d.ApprovalStatus != f.ApprovalStatus {
			continue
		}
		if f.RechargeStatus != "" && d.RechargeStatus != f.RechargeStatus {
			continue
		}
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	start := (f.Page - 1) * f.PageSize
	if start >= len(all) {
		return []deposit_model.DepositRequest{}, total, nil
	}
	end := min(start+f.PageSize, len(all))
	return all[start:end], total, nil
}

func (r *DepositRepository) Transition(_ context.Context, d *deposit_model.DepositRequest, expectedVersion int64, h *deposit_model.StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[d.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return model.ErrConcurrentModification
	}

	now := r.now()
	d.Version = expectedVersion + 1
	d.UpdateTime = now
	cp := *d
	r.rows[d.ID] = &cp

	if h != nil {
		r.histID++
		h.ID = r.histID
		h.DepositID = d.ID
		h.CreateTime = now
		r.history[d.ID] = append(r.history[d.ID], *h)
	}
	return nil
}

func (r *DepositRepository) History(_ context.Context, id int) ([]deposit_model.StatusHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]deposit_model.StatusHistory(nil), r.history[id]...), nil
}

func (r *DepositRepository) ListStale(_ context.Context, q deposit_model.StaleQuery) ([]deposit_model.DepositRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []deposit_model.DepositRequest
	for _, d := range r.rows {
		if d.ApprovalStatus != q.Approval || d.RechargeStatus != q.Recharge {
			continue
		}
		if q.Method != "" && d.RechargeMethod != q.Method {
			continue
		}
		if !d.UpdateTime.Before(q.UpdatedBefore) || d.ID <= q.AfterID {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// SetClock 替换时钟, 测试用
func (r *DepositRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// AdAccountRepository 进程内广告账户存储
type AdAccountRepository struct {
	mu     sync.RWMutex
	rows   map[int]*deposit_model.AdAccount
	nextID int
}

var _ deposit_model.AdAccountRepository = (*AdAccountRepository)(nil)

func NewAdAccountRepository() *AdAccountRepository {
	return &AdAccountRepository{rows: make(map[int]*deposit_model.AdAccount)}
}

func (r *AdAccountRepository) Create(_ context.Context, a *deposit_model.AdAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(a)
	return nil
}

// insert 调用方需持有锁
func (r *AdAccountRepository) insert(a *deposit_model.AdAccount) {
	r.nextID++
	now := time.Now()
	a.ID = r.nextID
	a.CreateTime = now
	a.UpdateTime = now
	cp := *a
	r.rows[a.ID] = &cp
}

func (r *AdAccountRepository) Get(_ context.Context, id int) (*deposit_model.AdAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AdAccountRepository) GetMany(_ context.Context, ids []int) (map[int]*deposit_model.AdAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]*deposit_model.AdAccount, len(ids))
	for _, id := range ids {
		if a, ok := r.rows[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *AdAccountRepository) ListByUser(_ context.Context, userID int) ([]deposit_model.AdAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []deposit_model.AdAccount
	for _, a := range r.rows {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AdAccountRepository) UpdateCachedBalance(_ context.Context, id int, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return model.ErrNotFound
	}
	a.CachedBalance = balance
	a.UpdateTime = time.Now()
	return nil
}

type rateKey struct {
	userID   int
	platform deposit_model.Platform
}

// CommissionRateRepository 进程内手续费率存储
type CommissionRateRepository struct {
	mu    sync.RWMutex
	rates map[rateKey]decimal.Decimal
}

var _ deposit_model.CommissionRateRepository = (*CommissionRateRepository)(nil)

func NewCommissionRateRepository() *CommissionRateRepository {
	return &CommissionRateRepository{rates: make(map[rateKey]decimal.Decimal)}
}

func (r *CommissionRateRepository) Rate(_ context.Context, userID int, platform deposit_model.Platform) (decimal.Decimal, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.rates[rateKey{userID, platform}]
	return rate, ok, nil
}

func (r *CommissionRateRepository) Upsert(_ context.Context, c *deposit_model.CommissionRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[rateKey{c.UserID, c.Platform}] = c.Rate
	return nil
}
