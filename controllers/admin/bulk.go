package admin

import (
	"adrecharge-admin/inout"
	"adrecharge-admin/middleware"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/services/bulk_service"

	"github.com/gin-gonic/gin"
)

// BulkController 批量审核
type BulkController struct {
	bulk *bulk_service.Coordinator
}

func NewBulkController(bulk *bulk_service.Coordinator) *BulkController {
	return &BulkController{bulk: bulk}
}

// Approve 批量审核通过
func (h *BulkController) Approve(c *gin.Context) {
	var req inout.BulkApproveReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	var (
		res *bulk_service.BulkResult
		err error
	)
	operator := middleware.GetOperator(c)
	switch req.Kind {
	case inout.BulkKindDeposit:
		res, err = h.bulk.BulkApproveDeposits(c.Request.Context(), req.IDs, operator)
	case inout.BulkKindApplication:
		res, err = h.bulk.BulkApproveApplications(c.Request.Context(), req.IDs, req.Bindings, operator)
	}
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, res)
}

// Reject 批量拒绝
func (h *BulkController) Reject(c *gin.Context) {
	var req inout.BulkRejectReq
	if !middleware.BindJSON(c, &req) {
		return
	}
	var (
		res *bulk_service.BulkResult
		err error
	)
	operator := middleware.GetOperator(c)
	switch req.Kind {
	case inout.BulkKindDeposit:
		res, err = h.bulk.BulkRejectDeposits(c.Request.Context(), req.IDs, req.Reason, req.Refund, operator)
	case inout.BulkKindApplication:
		res, err = h.bulk.BulkRejectApplications(c.Request.Context(), req.IDs, req.Reason, req.Refund, operator)
	}
	if err != nil {
		WriteError(c, err)
		return
	}
	response.Success(c, res)
}
