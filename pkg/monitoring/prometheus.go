package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus 指标定义
var (
	// HTTP 请求相关指标
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "当前使用中的数据库连接数",
		},
	)

	// 业务相关指标
	depositActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_actions_total",
			Help: "充值申请操作次数",
		},
		[]string{"action", "result"},
	)

	rechargeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_attempts_total",
			Help: "充值通道调用次数",
		},
		[]string{"method", "outcome"},
	)

	forceApprovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recharge_force_approvals_total",
			Help: "强制完成次数",
		},
	)

	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_reports_total",
			Help: "代理回执次数",
		},
		[]string{"outcome", "applied"},
	)

	walletOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "钱包记账次数",
		},
		[]string{"direction", "result"},
	)

	classificationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_fallbacks_total",
			Help: "通道识别降级为人工的次数",
		},
		[]string{"reason"},
	)

	directDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "direct_recharge_duration_seconds",
			Help:    "直充接口耗时分布",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)

	recoveredDeposits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_recovered_total",
			Help: "巡检修复的充值申请数",
		},
		[]string{"kind"},
	)

	panicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "处理请求时恢复的panic数",
		},
		[]string{"endpoint"},
	)

	// PoolTasks goroutine池任务结果
	PoolTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goroutine_pool_tasks_total",
			Help: "goroutine池任务数",
		},
		[]string{"pool", "state"},
	)
)

// PrometheusMiddleware Gin中间件，用于收集HTTP指标
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

func RecordDepositAction(action, result string) {
	depositActions.WithLabelValues(action, result).Inc()
}

func RecordRechargeAttempt(method, outcome string) {
	rechargeAttempts.WithLabelValues(method, outcome).Inc()
}

func RecordForceApproval() {
	forceApprovals.Inc()
}

func RecordReport(outcome string, applied bool) {
	reportsTotal.WithLabelValues(outcome, strconv.FormatBool(applied)).Inc()
}

func RecordWalletOperation(direction, result string) {
	walletOperations.WithLabelValues(direction, result).Inc()
}

func RecordClassificationFallback(reason string) {
	classificationFallbacks.WithLabelValues(reason).Inc()
}

func ObserveDirectDuration(d time.Duration) {
	directDuration.Observe(d.Seconds())
}

func RecordRecovered(kind string) {
	recoveredDeposits.WithLabelValues(kind).Inc()
}

func UpdateDBConnections(inUse int) {
	dbConnectionsInUse.Set(float64(inUse))
}

func RecordPanic(endpoint string) {
	if endpoint == "" {
		endpoint = "unmatched"
	}
	panicsTotal.WithLabelValues(endpoint).Inc()
}
