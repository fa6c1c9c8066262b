package router

import (
	"adrecharge-admin/middleware"
	"adrecharge-admin/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// InitAdminRoutes 运营后台接口
func InitAdminRoutes(r *gin.Engine, h Handlers) {
	g := r.Group("/api/admin")
	g.Use(middleware.JWTAuth(h.JWT), middleware.RequireRole(jwt.RoleAdmin))
	{
		g.GET("/deposits", h.Deposits.List)
		g.GET("/deposits/:id", h.Deposits.Detail)
		g.POST("/deposits/:id/approve", h.Deposits.Approve)
		g.POST("/deposits/:id/reject", h.Deposits.Reject)
		g.POST("/deposits/:id/retry", h.Deposits.Retry)
		g.POST("/deposits/:id/force-approve", h.Deposits.ForceApprove)
		g.POST("/deposits/:id/confirm-manual", h.Deposits.ConfirmManual)

		g.POST("/bulk/approve", h.Bulk.Approve)
		g.POST("/bulk/reject", h.Bulk.Reject)

		g.POST("/applications/:id/approve", h.Applications.Approve)
		g.POST("/applications/:id/reject", h.Applications.Reject)

		g.POST("/refunds/:id/approve", h.Refunds.Approve)
		g.POST("/refunds/:id/reject", h.Refunds.Reject)

		g.GET("/wallets/:uid", h.Wallets.Get)
		g.POST("/wallets/:uid/adjust", h.Wallets.Adjust)

		g.POST("/reconcile/sweep", h.Deposits.Sweep)
		g.GET("/audit/logs", h.Audit.List)
	}
}
