package deposit_service

import (
	"errors"
	"fmt"

	"adrecharge-admin/model"
	dm "adrecharge-admin/model/deposit_model"
)

// ErrStaleReport 代理回执与当前尝试不匹配(重复, 过期或已被覆盖)
var ErrStaleReport = errors.New("stale or duplicate agent report")

// Action 状态机动作
type Action string

const (
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionRechargeCompleted Action = "recharge_completed"
	ActionRechargeQueued    Action = "recharge_queued"
	ActionRechargeFailed    Action = "recharge_failed"
	ActionRetry             Action = "retry"
	ActionForceApprove      Action = "force_approve"
	ActionConfirmManual     Action = "confirm_manual"
	ActionAgentStart        Action = "agent_start"
	ActionReportCompleted   Action = "report_completed"
	ActionReportFailed      Action = "report_failed"
	ActionRecover           Action = "recover"
)

// State 充值申请的状态快照
type State struct {
	Approval dm.ApprovalStatus
	Recharge dm.RechargeStatus
	Method   dm.RechargeMethod
	Attempt  int
	Forced   bool
}

// Event 状态机输入
type Event struct {
	Action  Action
	Method  dm.RechargeMethod // approve / retry 时的通道
	Attempt int               // 代理回执携带的尝试序号
}

// TransitionError 非法状态迁移
type TransitionError struct {
	From   State
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s deposit in %s/%s (method %s)", e.Action, e.From.Approval, e.From.Recharge, e.From.Method)
}

func (e *TransitionError) Unwrap() error {
	return model.ErrInvalidTransition
}

// StateOf 取充值申请的状态
func StateOf(d *dm.DepositRequest) State {
	return State{
		Approval: d.ApprovalStatus,
		Recharge: d.RechargeStatus,
		Method:   d.RechargeMethod,
		Attempt:  d.AttemptCount,
		Forced:   d.ForceApproved,
	}
}

// apply 把状态写回充值申请
func apply(d *dm.DepositRequest, s State) {
	d.ApprovalStatus = s.Approval
	d.RechargeStatus = s.Recharge
	d.RechargeMethod = s.Method
	d.AttemptCount = s.Attempt
	d.ForceApproved = s.Forced
}

// Transition 唯一的状态迁移函数, 所有写操作都必须经过这里
func Transition(cur State, ev Event) (State, error) {
	next := cur
	invalid := &TransitionError{From: cur, Action: ev.Action}
	approved := cur.Approval == dm.ApprovalApproved

	switch ev.Action {
	case ActionApprove:
		if cur.Approval != dm.ApprovalPending || !ev.Method.IsChannel() {
			return cur, invalid
		}
		next.Approval = dm.ApprovalApproved
		next.Method = ev.Method
		if ev.Method == dm.MethodManual {
			next.Recharge = dm.RechargeNone
		} else {
			next.Recharge = dm.RechargeInProgress
			next.Attempt = cur.Attempt + 1
		}

	case ActionReject:
		if cur.Approval != dm.ApprovalPending {
			return cur, invalid
		}
		next.Approval = dm.ApprovalRejected
		next.Recharge = dm.RechargeNone

	case ActionRechargeCompleted:
		if !approved || cur.Recharge != dm.RechargeInProgress || cur.Method != dm.MethodDirect {
			return cur, invalid
		}
		next.Recharge = dm.RechargeCompleted

	case ActionRechargeQueued:
		if !approved || cur.Recharge != dm.RechargeInProgress || cur.Method != dm.MethodAgent {
			return cur, invalid
		}
		next.Recharge = dm.RechargePending

	case ActionRechargeFailed:
		if !approved || cur.Recharge != dm.RechargeInProgress ||
			(cur.Method != dm.MethodDirect && cur.Method != dm.MethodAgent) {
			return cur, invalid
		}
		next.Recharge = dm.RechargeFailed

	case ActionRetry:
		if !approved || cur.Recharge != dm.RechargeFailed || !ev.Method.IsChannel() {
			return cur, invalid
		}
		next.Method = ev.Method
		if ev.Method == dm.MethodManual {
			next.Recharge = dm.RechargeNone
		} else {
			next.Recharge = dm.RechargeInProgress
			next.Attempt = cur.Attempt + 1
		}

	case ActionForceApprove:
		agentOutstanding := cur.Method == dm.MethodAgent &&
			(cur.Recharge == dm.RechargePending || cur.Recharge == dm.RechargeInProgress)
		if !approved || (cur.Recharge != dm.RechargeFailed && !agentOutstanding) {
			return cur, invalid
		}
		next.Recharge = dm.RechargeCompleted
		next.Forced = true

	case ActionConfirmManual:
		if !approved || cur.Recharge != dm.RechargeNone || cur.Method != dm.MethodManual {
			return cur, invalid
		}
		next.Recharge = dm.RechargeCompleted

	case ActionAgentStart:
		if !approved {
			return cur, invalid
		}
		if cur.Method != dm.MethodAgent || cur.Recharge != dm.RechargePending || ev.Attempt != cur.Attempt {
			return cur, ErrStaleReport
		}
		next.Recharge = dm.RechargeInProgress

	case ActionReportCompleted, ActionReportFailed:
		if !approved {
			return cur, invalid
		}
		outstanding := cur.Recharge == dm.RechargePending || cur.Recharge == dm.RechargeInProgress
		if cur.Method != dm.MethodAgent || !outstanding || ev.Attempt != cur.Attempt {
			return cur, ErrStaleReport
		}
		if ev.Action == ActionReportCompleted {
			next.Recharge = dm.RechargeCompleted
		} else {
			next.Recharge = dm.RechargeFailed
		}

	case ActionRecover:
		switch {
		case approved && cur.Recharge == dm.RechargeInProgress && cur.Method == dm.MethodDirect:
			next.Recharge = dm.RechargeFailed
		case cur.Approval == dm.ApprovalPending:
			// 已扣款但审核未落库
			next.Approval = dm.ApprovalApproved
			next.Recharge = dm.RechargeFailed
		default:
			return cur, invalid
		}

	default:
		return cur, invalid
	}

	return next, nil
}
