package health

import (
	"context"
	"runtime"
	"sort"
	"time"

	"adrecharge-admin/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Checker 依赖探活
type Checker func(ctx context.Context) error

// HealthController 健康检查控制器
type HealthController struct {
	service string
	version string
	checks  map[string]Checker
	stats   map[string]func() map[string]interface{}
	timeout time.Duration
	started time.Time
}

// NewHealthController 创建健康检查控制器
func NewHealthController(service, version string) *HealthController {
	return &HealthController{
		service: service,
		version: version,
		checks:  make(map[string]Checker),
		stats:   make(map[string]func() map[string]interface{}),
		timeout: 3 * time.Second,
		started: time.Now(),
	}
}

// AddCheck 注册就绪检查项
func (h *HealthController) AddCheck(name string, check Checker) {
	h.checks[name] = check
}

// AddStats 注册附加统计信息
func (h *HealthController) AddStats(name string, fn func() map[string]interface{}) {
	h.stats[name] = fn
}

// CheckHealth 基础健康检查
func (h *HealthController) CheckHealth(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	info := gin.H{
		"status":    "ok",
		"service":   h.service,
		"version":   h.version,
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().Unix(),
		"system": gin.H{
			"go_version":    runtime.Version(),
			"num_goroutine": runtime.NumGoroutine(),
			"alloc_mb":      m.Alloc / 1024 / 1024,
		},
	}
	for name, fn := range h.stats {
		info[name] = fn()
	}
	response.Success(c, info)
}

// CheckLiveness 存活性检查
func (h *HealthController) CheckLiveness(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// CheckReadiness 并发检查所有依赖
func (h *HealthController) CheckReadiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			if err := check(ctx); err != nil {
				results[i] = name + ": " + err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	issues := make([]string, 0)
	for _, r := range results {
		if r != "" {
			issues = append(issues, r)
		}
	}
	if len(issues) > 0 {
		response.ErrorWithData(c, response.ERROR, gin.H{"issues": issues}, "service not ready")
		return
	}
	response.Success(c, gin.H{
		"status":    "ready",
		"checks":    names,
		"timestamp": time.Now().Unix(),
	})
}
