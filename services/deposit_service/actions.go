package deposit_service

import (
	"context"
	"errors"
	"fmt"

	"adrecharge-admin/model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/monitoring"

	"go.uber.org/zap"
)

// Reject 拒绝待审核申请, 必须填写原因, 不动钱包
func (s *Service) Reject(ctx context.Context, id int, reason, operator string) (*dm.DepositRequest, error) {
	reason = trimmed(reason)
	if reason == "" {
		return nil, model.ErrReasonRequired
	}

	var out *dm.DepositRequest
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		if d.ApprovalStatus == dm.ApprovalPending {
			// 扣款已发生但审核未落库, 不能再拒绝, 转入 APPROVED/FAILED 等待重试或强制通过
			entry, err := s.ledger.FindEntry(ctx, d.CauseID(), wallet_model.DirectionDebit)
			if err != nil {
				return err
			}
			if entry != nil {
				if err := s.recoverDebited(ctx, d, operator, "approval interrupted after debit"); err != nil {
					return err
				}
				monitoring.RecordRecovered("debited_pending")
				out = d
				return fmt.Errorf("%w: deposit %d was already debited, moved to %s",
					model.ErrInvalidTransition, id, statusText(StateOf(d)))
			}
		}
		err = s.step(ctx, d, Event{Action: ActionReject}, operator, reason, func(u *dm.DepositRequest) {
			u.RejectReason = truncate(reason, 500)
		})
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// ForceApprove 不经任何通道直接标记为完成. 不可撤销, 审计中单独标识
func (s *Service) ForceApprove(ctx context.Context, id int, operator, note string) (*dm.DepositRequest, error) {
	note = trimmed(note)

	var out *dm.DepositRequest
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		prev := StateOf(d)
		err = s.step(ctx, d, Event{Action: ActionForceApprove}, operator, note, func(u *dm.DepositRequest) {
			u.ForcedBy = operator
			if note != "" {
				u.AdminRemarks = truncate(note, 500)
			}
		})
		if err != nil {
			return err
		}

		monitoring.RecordForceApproval()
		s.logger.Warn("充值申请被强制通过",
			zap.Int("deposit_id", d.ID),
			zap.String("apply_no", d.ApplyNo),
			zap.String("operator", operator),
			zap.String("from", statusText(prev)),
			zap.String("method", string(d.RechargeMethod)),
			zap.Int("attempt", d.AttemptCount),
			zap.String("note", note))
		out = d
		return nil
	})
	return out, err
}

// ConfirmManual 管理员确认已在外部完成人工充值
func (s *Service) ConfirmManual(ctx context.Context, id int, operator string) (*dm.DepositRequest, error) {
	var out *dm.DepositRequest
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.step(ctx, d, Event{Action: ActionConfirmManual}, operator, "", nil); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

const agentOperator = "agent"

// AgentStart 代理领取任务, PENDING -> IN_PROGRESS
func (s *Service) AgentStart(ctx context.Context, id, attempt int) (*dm.DepositRequest, error) {
	var out *dm.DepositRequest
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.step(ctx, d, Event{Action: ActionAgentStart, Attempt: attempt}, agentOperator, "", nil); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// ReportOutcome 代理回执结果
type ReportOutcome string

const (
	ReportCompleted ReportOutcome = "completed"
	ReportFailed    ReportOutcome = "failed"
)

// Report 代理回执
type Report struct {
	DepositID int           `json:"deposit_id"`
	Attempt   int           `json:"attempt"`
	Outcome   ReportOutcome `json:"outcome"`
	Detail    string        `json:"detail"`
}

// HandleReport 应用代理回执. 重复或过期的回执返回 applied=false 且不报错
func (s *Service) HandleReport(ctx context.Context, r Report) (bool, error) {
	var action Action
	switch r.Outcome {
	case ReportCompleted:
		action = ActionReportCompleted
	case ReportFailed:
		action = ActionReportFailed
	default:
		return false, ErrInvalidReport
	}

	applied := false
	err := s.withLock(ctx, r.DepositID, func() error {
		d, err := s.deposits.Get(ctx, r.DepositID)
		if err != nil {
			return err
		}
		err = s.step(ctx, d, Event{Action: action, Attempt: r.Attempt}, agentOperator, r.Detail, func(u *dm.DepositRequest) {
			if action == ActionReportFailed {
				u.LastError = truncate(r.Detail, 500)
			} else {
				u.LastError = ""
			}
		})
		if errors.Is(err, ErrStaleReport) {
			s.logger.Info("忽略过期的代理回执",
				zap.Int("deposit_id", d.ID),
				zap.Int("report_attempt", r.Attempt),
				zap.Int("current_attempt", d.AttemptCount),
				zap.String("status", statusText(StateOf(d))),
				zap.String("outcome", string(r.Outcome)))
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	monitoring.RecordReport(string(r.Outcome), applied)
	return applied, nil
}
