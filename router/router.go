package router

import (
	"adrecharge-admin/controllers/admin"
	"adrecharge-admin/controllers/agent"
	"adrecharge-admin/controllers/app"
	"adrecharge-admin/controllers/health"
	"adrecharge-admin/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Handlers 路由依赖的控制器
type Handlers struct {
	JWT          *jwt.Manager
	AgentKeyHash string

	Deposits     *admin.DepositController
	Bulk         *admin.BulkController
	Applications *admin.ApplicationController
	Refunds      *admin.RefundController
	Wallets      *admin.WalletController
	Audit        *admin.AuditController
	App          *app.Controller
	Agent        *agent.Controller
	Health       *health.HealthController
}

// Init 注册全部路由
func Init(r *gin.Engine, h Handlers) {
	InitMonitoringRoutes(r, h.Health)
	InitAdminRoutes(r, h)
	InitAppRoutes(r, h)
	InitAgentRoutes(r, h)
}
