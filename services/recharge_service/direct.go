package recharge_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/pkg/config"
	"adrecharge-admin/pkg/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DirectAdapter 同步调用广告平台充值接口
type DirectAdapter struct {
	client    *http.Client
	endpoints map[dm.Platform]config.PlatformEndpoint
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewDirectAdapter 创建直充通道; rps <= 0 表示不限速
func NewDirectAdapter(client *http.Client, endpoints map[dm.Platform]config.PlatformEndpoint, timeout time.Duration, rps float64, logger *zap.Logger) *DirectAdapter {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &DirectAdapter{
		client:    client,
		endpoints: endpoints,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

func (a *DirectAdapter) Method() dm.RechargeMethod { return dm.MethodDirect }

type directRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

type directResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Balance string `json:"balance,omitempty"`
}

func (a *DirectAdapter) Recharge(ctx context.Context, req Request) (Outcome, error) {
	ep, ok := a.endpoints[req.Platform]
	if !ok || ep.BaseURL == "" {
		return Outcome{}, a.fail(KindRejected, "platform not configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer func() { monitoring.ObserveDirectDuration(time.Since(start)) }()

	if err := a.limiter.Wait(ctx); err != nil {
		return Outcome{}, a.fail(KindTimeout, "rate limiter wait", err)
	}

	body, err := json.Marshal(directRequest{
		Amount:    req.Amount.StringFixed(2),
		Reference: req.Reference(),
	})
	if err != nil {
		return Outcome{}, a.fail(KindRejected, "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/recharge", ep.BaseURL, url.PathEscape(req.ExternalAccountID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, a.fail(KindRejected, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference())
	if ep.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.Token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, a.fail(KindTimeout, fmt.Sprintf("no response within %s", a.timeout), err)
		}
		return Outcome{}, a.fail(KindRejected, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, a.fail(KindTimeout, "reading response", err)
		}
		return Outcome{}, a.fail(KindRejected, "read response", err)
	}

	var out directResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("http status %d", resp.StatusCode)
		}
		return Outcome{}, a.fail(KindRejected, msg, nil)
	}

	outcome := Outcome{Status: OutcomeCompleted, Reference: req.Reference()}
	if out.Balance != "" {
		if bal, err := decimal.NewFromString(out.Balance); err == nil {
			outcome.ExternalBalance = &bal
		}
	}

	a.logger.Info("直充成功",
		zap.Int("deposit_id", req.DepositID),
		zap.String("reference", req.Reference()),
		zap.String("platform", string(req.Platform)))
	return outcome, nil
}

func (a *DirectAdapter) fail(kind ErrorKind, detail string, err error) error {
	return &AdapterError{Method: dm.MethodDirect, Kind: kind, Detail: detail, Err: err}
}
