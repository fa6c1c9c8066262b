package admin

import (
	"errors"
	"strconv"

	"adrecharge-admin/model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/pkg/money"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/services/application_service"
	"adrecharge-admin/services/bulk_service"
	"adrecharge-admin/services/deposit_service"
	"adrecharge-admin/services/refund_service"
	"adrecharge-admin/services/wallet_service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WriteError 把业务错误映射为统一错误码
func WriteError(c *gin.Context, err error) {
	var ve *bulk_service.ValidationError
	switch {
	case errors.Is(err, wallet_model.ErrInsufficientFunds):
		response.Error(c, response.INSUFFICIENT_FUNDS)
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, application_service.ErrFeeRefunded):
		response.Error(c, response.INVALID_TRANSITION, err.Error())
	case errors.Is(err, model.ErrConcurrentModification):
		response.Error(c, response.CONCURRENT_MODIFICATION)
	case errors.As(err, &ve):
		response.ErrorWithData(c, response.BULK_VALIDATION, gin.H{"problems": ve.Problems})
	case errors.Is(err, deposit_service.ErrStaleReport):
		response.Error(c, response.STALE_REPORT)
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, wallet_model.ErrWalletNotFound):
		response.Error(c, response.NOT_FOUND)
	case errors.Is(err, deposit_service.ErrAccountNotOwned),
		errors.Is(err, refund_service.ErrAccountNotOwned):
		response.Error(c, response.FORBIDDEN, err.Error())
	case errors.Is(err, model.ErrReasonRequired),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, deposit_service.ErrNoExternalAccount),
		errors.Is(err, deposit_service.ErrInvalidReport),
		errors.Is(err, application_service.ErrNoBindings),
		errors.Is(err, application_service.ErrTooManyAccount),
		errors.Is(err, wallet_service.ErrReferenceRequired),
		errors.Is(err, wallet_model.ErrIdempotencyMismatch),
		errors.Is(err, bulk_service.ErrEmptyBatch),
		errors.Is(err, bulk_service.ErrBatchTooLarge):
		response.Error(c, response.INVALID_PARAMS, err.Error())
	default:
		zap.L().Error("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		response.Error(c, response.INTERNAL_ERROR)
	}
}

// ParseID 读取路径参数中的正整数ID
func ParseID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		response.Error(c, response.INVALID_PARAMS, "invalid "+name)
		return 0, false
	}
	return id, true
}
