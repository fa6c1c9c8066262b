package deposit_service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"adrecharge-admin/model"
	"adrecharge-admin/model/audit_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/money"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/services/recharge_service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmitInput 用户提交充值申请
type SubmitInput struct {
	UserID      int
	AdAccountID int
	Amount      decimal.Decimal
	Remarks     string
}

func (s *Service) newApplyNo() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "DP" + s.now().Format("20060102") + hex[:8]
}

// Submit 创建待审核申请, 手续费在此刻冻结, 不动钱包
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*dm.DepositRequest, error) {
	account, err := s.accounts.Get(ctx, in.AdAccountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != in.UserID {
		return nil, ErrAccountNotOwned
	}
	if account.ExternalID == "" {
		return nil, ErrNoExternalAccount
	}

	rate, found, err := s.rates.Rate(ctx, in.UserID, account.Platform)
	if err != nil {
		return nil, fmt.Errorf("load commission rate: %w", err)
	}
	if !found {
		rate = s.opts.DefaultRate
	}
	quote, err := money.Calculate(in.Amount, rate)
	if err != nil {
		return nil, err
	}

	d := &dm.DepositRequest{
		ApplyNo:           s.newApplyNo(),
		UserID:            in.UserID,
		AdAccountID:       account.ID,
		Platform:          account.Platform,
		ExternalAccountID: account.ExternalID,
		Amount:            quote.Amount,
		CommissionRate:    quote.Rate,
		CommissionAmount:  quote.Commission,
		TotalDebited:      quote.Total,
		Remarks:           truncate(trimmed(in.Remarks), 500),
		ApprovalStatus:    dm.ApprovalPending,
		RechargeStatus:    dm.RechargeNone,
		RechargeMethod:    dm.MethodUnassigned,
	}
	if err := s.deposits.Create(ctx, d); err != nil {
		return nil, err
	}

	monitoring.RecordDepositAction("submit", "ok")
	s.audit.Record(ctx, &audit_model.DepositAuditLog{
		LogType:     audit_model.LogTypeSubmit,
		DepositID:   &d.ID,
		ApplyNo:     d.ApplyNo,
		UserID:      &d.UserID,
		AdAccountID: &d.AdAccountID,
		NewStatus:   statusText(StateOf(d)),
		Operator:    fmt.Sprintf("user:%d", in.UserID),
		Message:     fmt.Sprintf("提交充值申请: %s", d.ApplyNo),
		Details: map[string]interface{}{
			"amount":     d.Amount.StringFixed(2),
			"rate":       d.CommissionRate.String(),
			"commission": d.CommissionAmount.StringFixed(2),
			"total":      d.TotalDebited.StringFixed(2),
		},
	})
	return d, nil
}

// Approve 审核通过: 扣款, 分类, 调用通道
func (s *Service) Approve(ctx context.Context, id int, operator string) (*Result, error) {
	return s.ApproveWith(ctx, id, operator, dm.MethodUnassigned)
}

// ApproveWith 与 Approve 相同, method 为有效通道时跳过分类(批量审核已统一分类)
func (s *Service) ApproveWith(ctx context.Context, id int, operator string, method dm.RechargeMethod) (*Result, error) {
	var res *Result
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		// 先按人工通道预检, 避免对非待审核申请做分类和扣款
		if _, err := Transition(StateOf(d), Event{Action: ActionApprove, Method: dm.MethodManual}); err != nil {
			return err
		}

		if !method.IsChannel() {
			method, err = s.classifyOne(ctx, d, false)
			if err != nil {
				return err
			}
		}

		receipt, err := s.ledger.ReserveAndDebit(ctx, d.UserID, d.TotalDebited, d.CauseID())
		if err != nil {
			monitoring.RecordWalletOperation(string(wallet_model.DirectionDebit), "failed")
			if errors.Is(err, wallet_model.ErrInsufficientFunds) {
				s.logger.Info("余额不足, 申请保持待审核",
					zap.Int("deposit_id", d.ID),
					zap.Int("user_id", d.UserID),
					zap.String("total", d.TotalDebited.StringFixed(2)))
			}
			return err
		}
		monitoring.RecordWalletOperation(string(wallet_model.DirectionDebit), "ok")
		if receipt.Replayed {
			s.logger.Warn("审核时发现已有扣款流水, 沿用原扣款", zap.Int("deposit_id", d.ID))
		}

		now := s.now()
		err = s.step(ctx, d, Event{Action: ActionApprove, Method: method}, operator, "", func(u *dm.DepositRequest) {
			u.ApprovedAt = &now
			u.ApprovedBy = operator
			u.LastError = ""
		})
		if err != nil {
			// 扣款已完成, 由巡检把申请修复为 APPROVED/FAILED
			s.logger.Error("扣款后写入审核状态失败",
				zap.Int("deposit_id", d.ID),
				zap.String("cause_id", d.CauseID()),
				zap.Error(err))
			return err
		}

		res, err = s.dispatch(ctx, d, operator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RetryRecharge 对失败的申请重新选择通道并再次充值, 不重复扣款
func (s *Service) RetryRecharge(ctx context.Context, id int, operator string) (*Result, error) {
	var res *Result
	err := s.withLock(ctx, id, func() error {
		d, err := s.deposits.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := Transition(StateOf(d), Event{Action: ActionRetry, Method: dm.MethodManual}); err != nil {
			return err
		}

		// 上次失败可能正是缓存的分类已过时, 重试时重新查询
		method, err := s.classifyOne(ctx, d, true)
		if err != nil {
			return err
		}

		// 同一 cause 的扣款是幂等的, 正常情况下这里只会命中原流水
		receipt, err := s.ledger.ReserveAndDebit(ctx, d.UserID, d.TotalDebited, d.CauseID())
		if err != nil {
			return err
		}
		if !receipt.Replayed {
			s.logger.Warn("重试时未找到原扣款流水, 已补扣", zap.Int("deposit_id", d.ID))
		}

		err = s.step(ctx, d, Event{Action: ActionRetry, Method: method}, operator, "", func(u *dm.DepositRequest) {
			u.LastError = ""
		})
		if err != nil {
			return err
		}

		res, err = s.dispatch(ctx, d, operator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) classifyOne(ctx context.Context, d *dm.DepositRequest, fresh bool) (dm.RechargeMethod, error) {
	account, err := s.accounts.Get(ctx, d.AdAccountID)
	if err != nil {
		return "", fmt.Errorf("load ad account %d: %w", d.AdAccountID, err)
	}
	if s.classifier == nil {
		return dm.MethodManual, nil
	}
	if fc, ok := s.classifier.(ForgettingClassifier); fresh && ok {
		fc.Forget(ctx, account)
	}
	method, ok := s.classifier.Classify(ctx, []*dm.AdAccount{account})[account.ID]
	if !ok || !method.IsChannel() {
		return dm.MethodManual, nil
	}
	return method, nil
}

// dispatch 调用当前通道并写入结果; 调用方已持有锁且申请处于 IN_PROGRESS 或人工 NONE
func (s *Service) dispatch(ctx context.Context, d *dm.DepositRequest, operator string) (*Result, error) {
	method := d.RechargeMethod
	if method == dm.MethodManual {
		monitoring.RecordRechargeAttempt(string(method), string(BranchManual))
		return &Result{Deposit: d, Branch: BranchManual}, nil
	}

	req := recharge_service.Request{
		DepositID:         d.ID,
		ApplyNo:           d.ApplyNo,
		Attempt:           d.AttemptCount,
		UserID:            d.UserID,
		Platform:          d.Platform,
		ExternalAccountID: d.ExternalAccountID,
		Amount:            d.Amount,
	}

	// 调用方断开后仍要把通道结果落库
	callCtx := context.WithoutCancel(ctx)
	var (
		out recharge_service.Outcome
		err error
	)
	adapter, ok := s.adapters[method]
	if !ok {
		err = fmt.Errorf("no adapter registered for %s", method)
	} else {
		out, err = adapter.Recharge(callCtx, req)
	}

	if err != nil {
		monitoring.RecordRechargeAttempt(string(method), string(BranchFailed))
		s.logger.Warn("充值通道调用失败",
			zap.Int("deposit_id", d.ID),
			zap.String("method", string(method)),
			zap.Int("attempt", d.AttemptCount),
			zap.Error(err))
		msg := truncate(err.Error(), 500)
		if stepErr := s.step(callCtx, d, Event{Action: ActionRechargeFailed}, operator, msg, func(u *dm.DepositRequest) {
			u.LastError = msg
		}); stepErr != nil {
			return nil, stepErr
		}
		return &Result{Deposit: d, Branch: BranchFailed, Err: msg}, nil
	}

	switch out.Status {
	case recharge_service.OutcomeCompleted:
		if err := s.step(callCtx, d, Event{Action: ActionRechargeCompleted}, operator, out.Reference, nil); err != nil {
			return nil, err
		}
		if out.ExternalBalance != nil {
			if err := s.accounts.UpdateCachedBalance(callCtx, d.AdAccountID, *out.ExternalBalance); err != nil {
				s.logger.Warn("更新账户余额缓存失败", zap.Int("ad_account_id", d.AdAccountID), zap.Error(err))
			}
		}
		monitoring.RecordRechargeAttempt(string(method), string(BranchCompleted))
		return &Result{Deposit: d, Branch: BranchCompleted}, nil

	case recharge_service.OutcomeQueued:
		if err := s.step(callCtx, d, Event{Action: ActionRechargeQueued}, operator, out.Reference, nil); err != nil {
			return nil, err
		}
		monitoring.RecordRechargeAttempt(string(method), string(BranchQueued))
		return &Result{Deposit: d, Branch: BranchQueued}, nil
	}

	return nil, fmt.Errorf("%w: adapter %s returned %q", model.ErrInvalidTransition, method, out.Status)
}

// BulkPlan 批量审核的预校验结果
type BulkPlan struct {
	Deposits map[int]*dm.DepositRequest
	Methods  map[int]dm.RechargeMethod // 按申请 ID
	Problems map[int]string            // 非空表示整批不可执行
}

// PlanBulkApprove 校验每笔申请存在且目标账户可绑定外部账户, 并对整批做一次分类
func (s *Service) PlanBulkApprove(ctx context.Context, ids []int) (*BulkPlan, error) {
	deposits, err := s.deposits.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	accountIDs := make([]int, 0, len(deposits))
	for _, d := range deposits {
		accountIDs = append(accountIDs, d.AdAccountID)
	}
	accounts, err := s.accounts.GetMany(ctx, accountIDs)
	if err != nil {
		return nil, err
	}

	plan := &BulkPlan{
		Deposits: deposits,
		Methods:  make(map[int]dm.RechargeMethod, len(ids)),
		Problems: make(map[int]string),
	}
	var targets []*dm.AdAccount
	seen := make(map[int]bool)
	for _, id := range ids {
		d, ok := deposits[id]
		if !ok {
			plan.Problems[id] = model.ErrNotFound.Error()
			continue
		}
		a, ok := accounts[d.AdAccountID]
		if !ok {
			plan.Problems[id] = fmt.Sprintf("ad account %d not found", d.AdAccountID)
			continue
		}
		if a.ExternalID == "" || d.ExternalAccountID == "" {
			plan.Problems[id] = ErrNoExternalAccount.Error()
			continue
		}
		if !seen[a.ID] {
			seen[a.ID] = true
			targets = append(targets, a)
		}
	}
	if len(plan.Problems) > 0 {
		return plan, nil
	}

	methods := map[int]dm.RechargeMethod{}
	if s.classifier != nil {
		methods = s.classifier.Classify(ctx, targets)
	}
	for _, id := range ids {
		m, ok := methods[deposits[id].AdAccountID]
		if !ok || !m.IsChannel() {
			m = dm.MethodManual
		}
		plan.Methods[id] = m
	}
	return plan, nil
}
