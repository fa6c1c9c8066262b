package recharge_service

import (
	"context"
	"time"

	dm "adrecharge-admin/model/deposit_model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AgentTask 投递给浏览器代理的充值任务
type AgentTask struct {
	TaskID            string      `json:"task_id"`
	DepositID         int         `json:"deposit_id"`
	ApplyNo           string      `json:"apply_no"`
	Attempt           int         `json:"attempt"`
	Platform          dm.Platform `json:"platform"`
	ExternalAccountID string      `json:"external_account_id"`
	Amount            string      `json:"amount"`
	EnqueuedAt        time.Time   `json:"enqueued_at"`
}

// TaskQueue 代理任务队列
type TaskQueue interface {
	Enqueue(ctx context.Context, task AgentTask) error
}

// AgentAdapter 异步代理充值: 只负责入队, 结果由回执驱动
type AgentAdapter struct {
	queue  TaskQueue
	logger *zap.Logger
	now    func() time.Time
}

func NewAgentAdapter(queue TaskQueue, logger *zap.Logger) *AgentAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentAdapter{queue: queue, logger: logger, now: time.Now}
}

func (a *AgentAdapter) Method() dm.RechargeMethod { return dm.MethodAgent }

func (a *AgentAdapter) Recharge(ctx context.Context, req Request) (Outcome, error) {
	task := AgentTask{
		TaskID:            uuid.NewString(),
		DepositID:         req.DepositID,
		ApplyNo:           req.ApplyNo,
		Attempt:           req.Attempt,
		Platform:          req.Platform,
		ExternalAccountID: req.ExternalAccountID,
		Amount:            req.Amount.StringFixed(2),
		EnqueuedAt:        a.now(),
	}
	if err := a.queue.Enqueue(ctx, task); err != nil {
		return Outcome{}, &AdapterError{Method: dm.MethodAgent, Kind: KindQueue, Detail: "enqueue agent task", Err: err}
	}

	a.logger.Info("代理充值任务已入队",
		zap.Int("deposit_id", req.DepositID),
		zap.Int("attempt", req.Attempt),
		zap.String("task_id", task.TaskID))
	return Outcome{Status: OutcomeQueued, Reference: task.TaskID}, nil
}
