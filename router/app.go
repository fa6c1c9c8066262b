package router

import (
	"adrecharge-admin/middleware"

	"github.com/gin-gonic/gin"
)

// InitAppRoutes 用户端接口, 任意角色登录即可
func InitAppRoutes(r *gin.Engine, h Handlers) {
	g := r.Group("/api/app")
	g.Use(middleware.JWTAuth(h.JWT))
	{
		g.POST("/deposits", h.App.SubmitDeposit)
		g.GET("/deposits", h.App.ListDeposits)
		g.POST("/applications", h.App.SubmitApplication)
		g.POST("/refunds", h.App.SubmitRefund)
		g.GET("/wallet", h.App.Wallet)
	}
}

// InitAgentRoutes 代理充值服务回调
func InitAgentRoutes(r *gin.Engine, h Handlers) {
	g := r.Group("/api/agent")
	g.Use(middleware.AgentAuth(h.AgentKeyHash))
	{
		g.POST("/deposits/:id/start", h.Agent.Start)
		g.POST("/deposits/:id/report", h.Agent.Report)
	}
}
