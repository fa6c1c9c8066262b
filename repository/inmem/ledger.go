package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"adrecharge-admin/model/wallet_model"

	"github.com/shopspring/decimal"
)

type entryKey struct {
	cause     string
	direction wallet_model.Direction
}

// Ledger 进程内账本
type Ledger struct {
	mu      sync.Mutex
	wallets map[int]*wallet_model.Wallet
	entries map[entryKey]*wallet_model.Entry
	nextID  int64
	now     func() time.Time
}

var _ wallet_model.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		wallets: make(map[int]*wallet_model.Wallet),
		entries: make(map[entryKey]*wallet_model.Entry),
		now:     time.Now,
	}
}

// Seed 设置初始余额, 仅用于测试和本地演示
func (l *Ledger) Seed(userID int, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.wallet(userID)
	w.Balance = balance
	w.Version++
}

func (l *Ledger) ReserveAndDebit(ctx context.Context, userID int, amount decimal.Decimal, causeID string) (*wallet_model.Receipt, error) {
	return l.apply(ctx, userID, amount, causeID, wallet_model.DirectionDebit)
}

func (l *Ledger) Credit(ctx context.Context, userID int, amount decimal.Decimal, causeID string) (*wallet_model.Receipt, error) {
	return l.apply(ctx, userID, amount, causeID, wallet_model.DirectionCredit)
}

func (l *Ledger) apply(ctx context.Context, userID int, amount decimal.Decimal, causeID string, dir wallet_model.Direction) (*wallet_model.Receipt, error) {
	if err := wallet_model.ValidateRequest(amount, causeID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := entryKey{cause: causeID, direction: dir}
	if existing, ok := l.entries[key]; ok {
		return wallet_model.CheckReplay(existing, userID, amount)
	}

	w, ok := l.wallets[userID]
	if !ok {
		if dir == wallet_model.DirectionDebit {
			return nil, wallet_model.ErrInsufficientFunds
		}
		w = l.wallet(userID)
	}

	before := w.Balance
	var after decimal.Decimal
	if dir == wallet_model.DirectionDebit {
		if before.LessThan(amount) {
			return nil, wallet_model.ErrInsufficientFunds
		}
		after = before.Sub(amount)
	} else {
		after = before.Add(amount)
	}

	now := l.now()
	w.Balance = after
	w.Version++
	w.UpdateTime = now

	l.nextID++
	entry := &wallet_model.Entry{
		ID:            l.nextID,
		UserID:        userID,
		CauseID:       causeID,
		Direction:     dir,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreateTime:    now,
	}
	l.entries[key] = entry
	return &wallet_model.Receipt{Entry: *entry}, nil
}

func (l *Ledger) Wallet(_ context.Context, userID int) (*wallet_model.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[userID]
	if !ok {
		return nil, wallet_model.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (l *Ledger) FindEntry(_ context.Context, causeID string, direction wallet_model.Direction) (*wallet_model.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[entryKey{cause: causeID, direction: direction}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (l *Ledger) Entries(_ context.Context, userID int, limit int) ([]wallet_model.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []wallet_model.Entry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// wallet 调用方需持有锁
func (l *Ledger) wallet(userID int) *wallet_model.Wallet {
	w, ok := l.wallets[userID]
	if !ok {
		now := l.now()
		w = &wallet_model.Wallet{UserID: userID, Balance: decimal.Zero, CreateTime: now, UpdateTime: now}
		l.wallets[userID] = w
	}
	return w
}
