package recharge_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/pkg/cache"
	"adrecharge-admin/pkg/config"
	"adrecharge-admin/pkg/monitoring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DirectoryClient 查询哪些外部账户支持直充
type DirectoryClient interface {
	// LookupDirect 批量查询同一平台的账户, 返回支持直充的账户集合
	LookupDirect(ctx context.Context, platform dm.Platform, externalIDs []string) (map[string]bool, error)
}

// Classifier 为广告账户选择充值通道
type Classifier struct {
	directory DirectoryClient
	cache     *cache.CacheManager
	timeout   time.Duration
	ttl       time.Duration
	logger    *zap.Logger
}

// NewClassifier directory 为 nil 时所有账户都不走直充; cacheManager 可为 nil
func NewClassifier(directory DirectoryClient, cacheManager *cache.CacheManager, timeout, ttl time.Duration, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		directory: directory,
		cache:     cacheManager,
		timeout:   timeout,
		ttl:       ttl,
		logger:    logger,
	}
}

type directFlag struct {
	Direct bool `json:"direct"`
}

func cacheKey(platform dm.Platform, externalID string) string {
	return fmt.Sprintf("recharge:class:%s:%s", platform, externalID)
}

// Classify 按平台批量查询, 查询失败的账户降级为人工
func (c *Classifier) Classify(ctx context.Context, accounts []*dm.AdAccount) map[int]dm.RechargeMethod {
	out := make(map[int]dm.RechargeMethod, len(accounts))
	direct := make(map[int]bool, len(accounts))
	failed := make(map[int]bool)

	pending := make(map[dm.Platform][]*dm.AdAccount)
	for _, a := range accounts {
		if c.cache != nil {
			var flag directFlag
			if err := c.cache.Get(ctx, cacheKey(a.Platform, a.ExternalID), &flag); err == nil {
				direct[a.ID] = flag.Direct
				continue
			}
		}
		pending[a.Platform] = append(pending[a.Platform], a)
	}

	if c.directory != nil && len(pending) > 0 {
		lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var mu sync.Mutex
		var g errgroup.Group
		for platform, group := range pending {
			g.Go(func() error {
				ids := make([]string, 0, len(group))
				for _, a := range group {
					ids = append(ids, a.ExternalID)
				}

				found, err := c.directory.LookupDirect(lookupCtx, platform, ids)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					reason := "error"
					if errors.Is(err, context.DeadlineExceeded) || errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
						reason = "timeout"
					}
					monitoring.RecordClassificationFallback(reason)
					c.logger.Warn("账户通道查询失败, 降级为人工充值",
						zap.String("platform", string(platform)),
						zap.Int("accounts", len(group)),
						zap.Error(fmt.Errorf("%w: %w", ErrClassificationUnavailable, err)))
					for _, a := range group {
						failed[a.ID] = true
					}
					return nil
				}
				for _, a := range group {
					direct[a.ID] = found[a.ExternalID]
					if c.cache != nil {
						_ = c.cache.Set(ctx, cacheKey(a.Platform, a.ExternalID), directFlag{Direct: found[a.ExternalID]}, c.ttl)
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, a := range accounts {
		switch {
		case failed[a.ID]:
			out[a.ID] = dm.MethodManual
		case direct[a.ID]:
			out[a.ID] = dm.MethodDirect
		case a.AutomationEnabled:
			out[a.ID] = dm.MethodAgent
		default:
			out[a.ID] = dm.MethodManual
		}
	}
	return out
}

// Forget 清除账户的通道缓存
func (c *Classifier) Forget(ctx context.Context, a *dm.AdAccount) {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, cacheKey(a.Platform, a.ExternalID))
	}
}

// HTTPDirectoryClient 调用各平台目录服务
type HTTPDirectoryClient struct {
	client    *http.Client
	endpoints map[dm.Platform]config.PlatformEndpoint
}

func NewHTTPDirectoryClient(client *http.Client, endpoints map[dm.Platform]config.PlatformEndpoint) *HTTPDirectoryClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDirectoryClient{client: client, endpoints: endpoints}
}

type lookupRequest struct {
	AccountIDs []string `json:"account_ids"`
}

type lookupResponse struct {
	Direct []string `json:"direct"`
}

func (h *HTTPDirectoryClient) LookupDirect(ctx context.Context, platform dm.Platform, externalIDs []string) (map[string]bool, error) {
	ep, ok := h.endpoints[platform]
	if !ok || ep.DirectoryURL == "" {
		// 未接入目录服务的平台没有直充能力
		return map[string]bool{}, nil
	}

	body, err := json.Marshal(lookupRequest{AccountIDs: externalIDs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.DirectoryURL+"/v1/directory/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("directory lookup: http status %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	found := make(map[string]bool, len(out.Direct))
	for _, id := range out.Direct {
		found[id] = true
	}
	return found, nil
}
