package audit_model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DepositAuditLog 充值审核操作日志
type DepositAuditLog struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LogType     string             `bson:"log_type" json:"log_type"`           // 日志类型
	DepositID   *int               `bson:"deposit_id" json:"deposit_id"`       // 充值申请ID
	ApplyNo     string             `bson:"apply_no" json:"apply_no"`           // 申请单号
	UserID      *int               `bson:"user_id" json:"user_id"`             // 用户ID
	AdAccountID *int               `bson:"ad_account_id" json:"ad_account_id"` // 广告账户ID
	Action      string             `bson:"action" json:"action"`               // 状态机动作
	OldStatus   string             `bson:"old_status" json:"old_status"`       // 原状态 approval/recharge
	NewStatus   string             `bson:"new_status" json:"new_status"`       // 新状态
	Method      string             `bson:"method" json:"method"`               // 充值通道
	Attempt     int                `bson:"attempt" json:"attempt"`             // 尝试序号
	Operator    string             `bson:"operator" json:"operator"`           // 操作人
	Forced      bool               `bson:"forced" json:"forced"`               // 是否强制通过
	Message     string             `bson:"message" json:"message"`             // 操作信息
	ErrorMsg    string             `bson:"error_msg" json:"error_msg"`         // 错误信息
	Details     interface{}        `bson:"details" json:"details"`             // 详细信息
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`       // 创建时间
	ServerInfo  ServerInfo         `bson:"server_info" json:"server_info"`     // 服务器信息
}

// ServerInfo 服务器信息
type ServerInfo struct {
	Hostname string `bson:"hostname" json:"hostname"`
	PID      int    `bson:"pid" json:"pid"`
}

// 日志类型常量
const (
	LogTypeSubmit         = "deposit_submit"   // 提交充值申请
	LogTypeApprove        = "deposit_approve"  // 审核通过
	LogTypeReject         = "deposit_reject"   // 审核拒绝
	LogTypeRecharge       = "recharge_result"  // 通道充值结果
	LogTypeRetry          = "recharge_retry"   // 重试充值
	LogTypeForceApprove   = "force_approve"    // 强制通过
	LogTypeManualConfirm  = "manual_confirm"   // 人工充值确认
	LogTypeAgentReport    = "agent_report"     // 代理回执
	LogTypeRecover        = "deposit_recover"  // 巡检修复
	LogTypeApplication    = "application"      // 开户申请审核
	LogTypeRefund         = "refund"           // 退款审核
	LogTypeWalletAdjust   = "wallet_adjust"    // 余额调整
	LogTypeOperationError = "operation_error"  // 操作失败
)

// GetLogTypeText 获取日志类型文本
func GetLogTypeText(logType string) string {
	switch logType {
	case LogTypeSubmit:
		return "提交充值申请"
	case LogTypeApprove:
		return "审核通过"
	case LogTypeReject:
		return "审核拒绝"
	case LogTypeRecharge:
		return "通道充值结果"
	case LogTypeRetry:
		return "重试充值"
	case LogTypeForceApprove:
		return "强制通过"
	case LogTypeManualConfirm:
		return "人工充值确认"
	case LogTypeAgentReport:
		return "代理回执"
	case LogTypeRecover:
		return "巡检修复"
	case LogTypeApplication:
		return "开户申请审核"
	case LogTypeRefund:
		return "退款审核"
	case LogTypeWalletAdjust:
		return "余额调整"
	case LogTypeOperationError:
		return "操作失败"
	default:
		return "未知类型"
	}
}

// ListQuery 日志查询条件
type ListQuery struct {
	LogType   string
	DepositID int
	ApplyNo   string
	Operator  string
	Forced    *bool
	Start     time.Time
	End       time.Time
	Page      int
	PageSize  int
}

// Normalize 分页参数归一
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}
