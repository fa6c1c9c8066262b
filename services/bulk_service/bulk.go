package bulk_service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"adrecharge-admin/model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/services/application_service"
	"adrecharge-admin/services/deposit_service"
	"adrecharge-admin/services/recharge_service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrBulkValidation = errors.New("bulk pre-validation failed")
	ErrEmptyBatch     = errors.New("no ids given")
	ErrBatchTooLarge  = errors.New("too many ids in one batch")
)

// ValidationError 预校验失败, 整批未执行
type ValidationError struct {
	Problems map[int]string
}

func (e *ValidationError) Error() string {
	ids := make([]int, 0, len(e.Problems))
	for id := range e.Problems {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d: %s", id, e.Problems[id]))
	}
	return fmt.Sprintf("%s (%s)", ErrBulkValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrBulkValidation }

// ItemResult 单条结果
type ItemResult struct {
	ID       int    `json:"id"`
	OK       bool   `json:"ok"`
	Branch   string `json:"branch,omitempty"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
	Refunded bool   `json:"refunded"`
}

// BulkResult 批量结果, Items 与输入顺序一致
type BulkResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// ErrorCode 把错误归类为稳定的错误码
func ErrorCode(err error) string {
	var ae *recharge_service.AdapterError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, wallet_model.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, model.ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, model.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, model.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, model.ErrReasonRequired):
		return "REASON_REQUIRED"
	case errors.As(err, &ae) && ae.Kind == recharge_service.KindTimeout:
		return "ADAPTER_TIMEOUT"
	case errors.As(err, &ae):
		return "ADAPTER_REJECTED"
	}
	return "INTERNAL"
}

// Coordinator 批量审核, 单条失败不影响其他条目
type Coordinator struct {
	deposits     *deposit_service.Service
	applications *application_service.Service
	maxItems     int
	concurrency  int
	logger       *zap.Logger
}

func NewCoordinator(deposits *deposit_service.Service, applications *application_service.Service, maxItems, concurrency int, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		deposits:     deposits,
		applications: applications,
		maxItems:     maxItems,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// dedupe 去重并保持原顺序
func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (c *Coordinator) prepare(ids []int) ([]int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	if c.maxItems > 0 && len(ids) > c.maxItems {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ids), c.maxItems)
	}
	return ids, nil
}

// run 以有限并发执行每一条, 结果写入对应下标
func (c *Coordinator) run(ctx context.Context, ids []int, fn func(ctx context.Context, id int) ItemResult) *BulkResult {
	items := make([]ItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("批量处理条目时发生panic", zap.Int("id", id), zap.Any("panic", r))
					items[i] = ItemResult{ID: id, Code: "INTERNAL", Error: fmt.Sprint(r)}
				}
			}()
			items[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	res := &BulkResult{Items: items}
	for _, it := range items {
		if it.OK {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

func failed(id int, err error) ItemResult {
	return ItemResult{ID: id, Code: ErrorCode(err), Error: err.Error()}
}

// BulkApproveDeposits 预校验全部通过后逐条审核; 整批只做一次通道分类
func (c *Coordinator) BulkApproveDeposits(ctx context.Context, ids []int, operator string) (*BulkResult, error) {
	ids, err := c.prepare(ids)
	if err != nil {
		return nil, err
	}
	plan, err := c.deposits.PlanBulkApprove(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(plan.Problems) > 0 {
		return nil, &ValidationError{Problems: plan.Problems}
	}

	res := c.run(ctx, ids, func(ctx context.Context, id int) ItemResult {
		r, err := c.deposits.ApproveWith(ctx, id, operator, plan.Methods[id])
		if err != nil {
			return failed(id, err)
		}
		item := ItemResult{ID: id, OK: true, Branch: string(r.Branch)}
		if r.Err != "" {
			item.Error = r.Err
		}
		return item
	})
	c.logger.Info("批量审核充值申请",
		zap.String("operator", operator),
		zap.Int("total", len(ids)),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res, nil
}

// BulkRejectDeposits 逐条拒绝. 待审核申请尚未扣款, refund 对充值申请不产生钱包变动
func (c *Coordinator) BulkRejectDeposits(ctx context.Context, ids []int, reason string, refund bool, operator string) (*BulkResult, error) {
	ids, err := c.prepare(ids)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, model.ErrReasonRequired
	}

	res := c.run(ctx, ids, func(ctx context.Context, id int) ItemResult {
		if _, err := c.deposits.Reject(ctx, id, reason, operator); err != nil {
			return failed(id, err)
		}
		return ItemResult{ID: id, OK: true, Refunded: false}
	})
	c.logger.Info("批量拒绝充值申请",
		zap.String("operator", operator),
		zap.Bool("refund_requested", refund),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res, nil
}

// BulkApproveApplications 每个申请至少要有一个外部账户绑定, 否则整批不执行
func (c *Coordinator) BulkApproveApplications(ctx context.Context, ids []int, bindings map[int][]application_service.AccountBinding, operator string) (*BulkResult, error) {
	ids, err := c.prepare(ids)
	if err != nil {
		return nil, err
	}

	problems := make(map[int]string)
	for _, id := range ids {
		if _, err := c.applications.Get(ctx, id); err != nil {
			problems[id] = err.Error()
			continue
		}
		if err := c.applications.ValidateBindings(bindings[id]); err != nil {
			problems[id] = err.Error()
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return c.run(ctx, ids, func(ctx context.Context, id int) ItemResult {
		if _, err := c.applications.Approve(ctx, id, bindings[id], operator); err != nil {
			return failed(id, err)
		}
		return ItemResult{ID: id, OK: true}
	}), nil
}

// BulkRejectApplications 逐条拒绝开户申请, refund 时退回开户费
func (c *Coordinator) BulkRejectApplications(ctx context.Context, ids []int, reason string, refund bool, operator string) (*BulkResult, error) {
	ids, err := c.prepare(ids)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, model.ErrReasonRequired
	}

	return c.run(ctx, ids, func(ctx context.Context, id int) ItemResult {
		a, err := c.applications.Reject(ctx, id, reason, refund, operator)
		if err != nil {
			return failed(id, err)
		}
		return ItemResult{ID: id, OK: true, Refunded: a.Refunded}
	}), nil
}
