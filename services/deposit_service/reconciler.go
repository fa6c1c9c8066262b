package deposit_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"adrecharge-admin/model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/pkg/mq"

	"go.uber.org/zap"
)

const systemOperator = "system"

// SweepStats 一次巡检的统计
type SweepStats struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
	Skipped   int `json:"skipped"`
}

// SweepOnce 修复进程崩溃遗留的中间状态:
//  1. 直充 IN_PROGRESS 长时间未更新 -> FAILED
//  2. 已有扣款流水但仍为 PENDING -> APPROVED/FAILED
//
// 代理通道不会被自动判失败, 只能等回执或管理员强制处理.
func (s *Service) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	cutoff := s.now().Add(-s.opts.StaleAfter)

	err := s.scanStale(ctx, dm.StaleQuery{
		Approval:      dm.ApprovalApproved,
		Recharge:      dm.RechargeInProgress,
		Method:        dm.MethodDirect,
		UpdatedBefore: cutoff,
	}, func(d *dm.DepositRequest) error {
		stats.Scanned++
		return s.recoverOne(ctx, d.ID, cutoff, "recharge interrupted", "direct_in_progress", &stats)
	})
	if err != nil {
		return stats, err
	}

	err = s.scanStale(ctx, dm.StaleQuery{
		Approval:      dm.ApprovalPending,
		Recharge:      dm.RechargeNone,
		UpdatedBefore: cutoff,
	}, func(d *dm.DepositRequest) error {
		entry, err := s.ledger.FindEntry(ctx, d.CauseID(), wallet_model.DirectionDebit)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		stats.Scanned++
		return s.recoverOne(ctx, d.ID, cutoff, "approval interrupted after debit", "debited_pending", &stats)
	})
	return stats, err
}

// scanStale 按 id 游标分页遍历
func (s *Service) scanStale(ctx context.Context, q dm.StaleQuery, fn func(d *dm.DepositRequest) error) error {
	q.Limit = s.opts.SweepBatch
	for {
		page, err := s.deposits.ListStale(ctx, q)
		if err != nil {
			return fmt.Errorf("list stale deposits: %w", err)
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(&page[i]); err != nil {
				return err
			}
			q.AfterID = page[i].ID
		}
		if len(page) < q.Limit {
			return nil
		}
	}
}

func (s *Service) recoverOne(ctx context.Context, id int, cutoff time.Time, reason, kind string, stats *SweepStats) error {
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		// 拿到锁后重新确认仍然卡住
		if !d.UpdateTime.Before(cutoff) {
			return errSkip
		}
		return s.recoverDebited(ctx, d, systemOperator, reason)
	})

	switch {
	case err == nil:
		stats.Recovered++
		monitoring.RecordRecovered(kind)
		s.logger.Warn("巡检修复充值申请", zap.Int("deposit_id", id), zap.String("kind", kind))
		return nil
	case errors.Is(err, errSkip),
		errors.Is(err, model.ErrConcurrentModification),
		errors.Is(err, model.ErrInvalidTransition):
		stats.Skipped++
		return nil
	}
	return err
}

var errSkip = errors.New("skip")

// recoverDebited 走 recover 迁移; 调用方需持有锁
func (s *Service) recoverDebited(ctx context.Context, d *dm.DepositRequest, operator, reason string) error {
	wasPending := d.ApprovalStatus == dm.ApprovalPending
	now := s.now()
	return s.step(ctx, d, Event{Action: ActionRecover}, operator, reason, func(u *dm.DepositRequest) {
		u.LastError = reason
		if wasPending {
			u.ApprovedAt = &now
			u.ApprovedBy = operator
		}
	})
}

// Run 定时巡检直到 ctx 结束
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("充值巡检已启动", zap.Duration("interval", interval), zap.Duration("stale_after", s.opts.StaleAfter))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("充值巡检失败", zap.Error(err))
				continue
			}
			if stats.Recovered > 0 || stats.Skipped > 0 {
				s.logger.Info("充值巡检完成",
					zap.Int("scanned", stats.Scanned),
					zap.Int("recovered", stats.Recovered),
					zap.Int("skipped", stats.Skipped))
			}
		}
	}
}

// ReportHandler 把队列中的代理回执交给 HandleReport
func (s *Service) ReportHandler() mq.Handler {
	return func(ctx context.Context, body []byte) error {
		var r Report
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
		}
		_, err := s.HandleReport(ctx, r)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrInvalidReport),
			errors.Is(err, model.ErrNotFound),
			errors.Is(err, model.ErrInvalidTransition):
			return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
		}
		// 并发修改等临时错误重新入队
		return err
	}
}

// ConsumeReports 阻塞消费回执队列直到 ctx 结束, 连接中断时自动重连
func (s *Service) ConsumeReports(ctx context.Context, consumer mq.Consumer, queue string, prefetch int) error {
	s.logger.Info("开始消费代理回执", zap.String("queue", queue))
	return mq.ConsumeForever(ctx, consumer, queue, prefetch, s.ReportHandler(), s.logger)
}
