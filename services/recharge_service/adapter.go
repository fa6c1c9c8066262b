package recharge_service

import (
	"context"
	"errors"
	"fmt"

	dm "adrecharge-admin/model/deposit_model"

	"github.com/shopspring/decimal"
)

var (
	ErrAdapterTimeout            = errors.New("recharge adapter timed out")
	ErrAdapterRejected           = errors.New("recharge adapter rejected the request")
	ErrQueueRejected             = errors.New("agent queue rejected the task")
	ErrClassificationUnavailable = errors.New("account directory unavailable")
)

// ErrorKind 通道失败类型
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindRejected ErrorKind = "rejected"
	KindQueue    ErrorKind = "queue"
)

// AdapterError 充值通道返回的失败, 一律视为本次尝试失败
type AdapterError struct {
	Method dm.RechargeMethod
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Kind, e.Detail)
}

func (e *AdapterError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindTimeout:
		sentinel = ErrAdapterTimeout
	case KindQueue:
		sentinel = ErrQueueRejected
	default:
		sentinel = ErrAdapterRejected
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// Request 一次充值尝试
type Request struct {
	DepositID         int
	ApplyNo           string
	Attempt           int
	UserID            int
	Platform          dm.Platform
	ExternalAccountID string
	Amount            decimal.Decimal
}

// Reference 外部幂等引用号, 每次尝试唯一
func (r Request) Reference() string {
	return fmt.Sprintf("%s-%d", r.ApplyNo, r.Attempt)
}

// OutcomeStatus 通道调用结果
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeQueued    OutcomeStatus = "queued"
	OutcomeManual    OutcomeStatus = "manual"
)

// Outcome 通道调用成功时的结果
type Outcome struct {
	Status          OutcomeStatus
	Reference       string
	ExternalBalance *decimal.Decimal
}

// Adapter 充值通道
type Adapter interface {
	Method() dm.RechargeMethod
	Recharge(ctx context.Context, req Request) (Outcome, error)
}

// ManualAdapter 人工充值, 由管理员在外部完成后确认
type ManualAdapter struct{}

func (ManualAdapter) Method() dm.RechargeMethod { return dm.MethodManual }

func (ManualAdapter) Recharge(_ context.Context, req Request) (Outcome, error) {
	return Outcome{Status: OutcomeManual, Reference: req.Reference()}, nil
}

// Adapters 按通道索引
type Adapters map[dm.RechargeMethod]Adapter

// NewAdapters 组装通道表
func NewAdapters(list ...Adapter) Adapters {
	out := make(Adapters, len(list))
	for _, a := range list {
		out[a.Method()] = a
	}
	return out
}
