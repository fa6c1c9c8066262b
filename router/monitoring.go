package router

import (
	"adrecharge-admin/controllers/health"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InitMonitoringRoutes 健康检查与指标
func InitMonitoringRoutes(r *gin.Engine, h *health.HealthController) {
	if h != nil {
		r.GET("/health", h.CheckHealth)
		r.GET("/health/live", h.CheckLiveness)
		r.GET("/health/ready", h.CheckReadiness)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
