package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adrecharge-admin/controllers/admin"
	"adrecharge-admin/controllers/agent"
	"adrecharge-admin/controllers/app"
	"adrecharge-admin/controllers/health"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/pkg/config"
	"adrecharge-admin/pkg/jwt"
	"adrecharge-admin/pkg/mq"
	"adrecharge-admin/pkg/response"
	"adrecharge-admin/repository/inmem"
	"adrecharge-admin/services/application_service"
	"adrecharge-admin/services/audit_service"
	"adrecharge-admin/services/bulk_service"
	"adrecharge-admin/services/deposit_service"
	"adrecharge-admin/services/recharge_service"
	"adrecharge-admin/services/refund_service"
	"adrecharge-admin/services/wallet_service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	userID   = 7
	agentKey = "agent-secret"
)

type env struct {
	engine    *gin.Engine
	jwt       *jwt.Manager
	accountID int
	broker    *mq.MemoryBroker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	accounts := inmem.NewAdAccountRepository()
	acc := &dm.AdAccount{UserID: userID, Platform: dm.PlatformMeta, ExternalID: "act_1", AutomationEnabled: true}
	require.NoError(t, accounts.Create(t.Context(), acc))

	ledger := inmem.NewLedger()
	ledger.Seed(userID, decimal.NewFromInt(1000))
	recorder := audit_service.NewMemoryRecorder()
	broker := mq.NewMemoryBroker(16)

	deposits := deposit_service.NewService(deposit_service.Deps{
		Deposits:   inmem.NewDepositRepository(),
		Accounts:   accounts,
		Rates:      inmem.NewCommissionRateRepository(),
		Ledger:     ledger,
		Classifier: recharge_service.NewClassifier(nil, nil, time.Second, time.Minute, nil),
		Adapters: recharge_service.NewAdapters(
			recharge_service.NewAgentAdapter(mq.NewTaskQueue[recharge_service.AgentTask](broker, "tasks"), nil),
			recharge_service.ManualAdapter{},
		),
		Audit: recorder,
	}, deposit_service.Options{DefaultRate: decimal.NewFromInt(5)})
	applications := application_service.NewService(inmem.NewApplicationRepository(accounts), ledger, nil, recorder, nil, decimal.NewFromInt(10), 3)
	refunds := refund_service.NewService(inmem.NewRefundRepository(), accounts, ledger, nil, recorder, nil)
	wallets := wallet_service.NewService(ledger, recorder, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte(agentKey), bcrypt.MinCost)
	require.NoError(t, err)

	manager := jwt.NewManager(config.JWTConfig{SigningKey: "router-test", Issuer: "test", Expiry: time.Hour})
	r := gin.New()
	Init(r, Handlers{
		JWT:          manager,
		AgentKeyHash: string(hash),
		Deposits:     admin.NewDepositController(deposits),
		Bulk:         admin.NewBulkController(bulk_service.NewCoordinator(deposits, applications, 50, 2, nil)),
		Applications: admin.NewApplicationController(applications),
		Refunds:      admin.NewRefundController(refunds),
		Wallets:      admin.NewWalletController(wallets),
		Audit:        admin.NewAuditController(recorder),
		App:          app.NewController(deposits, applications, refunds, wallets),
		Agent:        agent.NewController(deposits),
		Health:       health.NewHealthController("adrecharge-admin", "test"),
	})
	return &env{engine: r, jwt: manager, accountID: acc.ID, broker: broker}
}

func (e *env) token(t *testing.T, uid int, role string) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(uid, role)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (response.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

func requireAmount(t *testing.T, want string, got interface{}) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(fmt.Sprint(got))), "want %s got %v", want, got)
}

func TestAgentDepositLifecycle(t *testing.T) {
	e := newEnv(t)
	user := e.token(t, userID, jwt.RoleUser)
	adminTok := e.token(t, 1, jwt.RoleAdmin)

	resp, data := e.do(t, http.MethodPost, "/api/app/deposits", user, gin.H{"ad_account_id": e.accountID, "amount": "100", "remarks": "q3"})
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	requireAmount(t, "105", data["total_debited"])
	id := int(data["id"].(float64))

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/deposits/%d/approve", id), user, nil)
	require.Equal(t, response.FORBIDDEN, resp.Code)

	resp, data = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/deposits/%d/approve", id), adminTok, nil)
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	require.Equal(t, string(deposit_service.BranchQueued), data["branch"])
	dep := data["deposit"].(map[string]interface{})
	require.Equal(t, string(dm.MethodAgent), dep["recharge_method"])
	attempt := int(dep["attempt_count"].(float64))

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/agent/deposits/%d/start", id), "", gin.H{"attempt": attempt})
	require.Equal(t, response.AUTH_ERROR, resp.Code)

	resp, data = e.do(t, http.MethodPost, fmt.Sprintf("/api/agent/deposits/%d/start", id), "", gin.H{"attempt": attempt}, "X-Agent-Key", agentKey)
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	require.Equal(t, string(dm.RechargeInProgress), data["recharge_status"])

	report := gin.H{"attempt": attempt, "outcome": "completed", "detail": "ok"}
	resp, data = e.do(t, http.MethodPost, fmt.Sprintf("/api/agent/deposits/%d/report", id), "", report, "X-Agent-Key", agentKey)
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	require.Equal(t, true, data["applied"])

	resp, data = e.do(t, http.MethodPost, fmt.Sprintf("/api/agent/deposits/%d/report", id), "", report, "X-Agent-Key", agentKey)
	require.Equal(t, response.STALE_REPORT, resp.Code)
	require.Equal(t, false, data["applied"])

	resp, data = e.do(t, http.MethodGet, fmt.Sprintf("/api/admin/deposits/%d", id), adminTok, nil)
	require.Equal(t, response.SUCCESS, resp.Code)
	dep = data["deposit"].(map[string]interface{})
	require.Equal(t, string(dm.ApprovalApproved), dep["approval_status"])
	require.Equal(t, string(dm.RechargeCompleted), dep["recharge_status"])
	require.GreaterOrEqual(t, len(data["history"].([]interface{})), 3)

	resp, data = e.do(t, http.MethodGet, "/api/app/wallet", user, nil)
	require.Equal(t, response.SUCCESS, resp.Code)
	requireAmount(t, "895", data["wallet"].(map[string]interface{})["balance"])

	resp, data = e.do(t, http.MethodGet, "/api/admin/audit/logs?deposit_id="+fmt.Sprint(id), adminTok, nil)
	require.Equal(t, response.SUCCESS, resp.Code)
	require.NotZero(t, data["total"])
}

func TestErrorCodes(t *testing.T) {
	e := newEnv(t)
	user := e.token(t, userID, jwt.RoleUser)
	adminTok := e.token(t, 1, jwt.RoleAdmin)

	resp, _ := e.do(t, http.MethodPost, "/api/app/deposits", user, gin.H{"ad_account_id": e.accountID, "amount": "12.345"})
	require.Equal(t, response.INVALID_PARAMS, resp.Code)

	resp, data := e.do(t, http.MethodPost, "/api/app/deposits", user, gin.H{"ad_account_id": e.accountID, "amount": "990"})
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	big := int(data["id"].(float64))

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/deposits/%d/approve", big), adminTok, nil)
	require.Equal(t, response.INSUFFICIENT_FUNDS, resp.Code)

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/deposits/%d/reject", big), adminTok, gin.H{})
	require.Equal(t, response.INVALID_PARAMS, resp.Code)

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/deposits/%d/reject", big), adminTok, gin.H{"reason": "too large"})
	require.Equal(t, response.SUCCESS, resp.Code)

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/deposits/%d/approve", big), adminTok, nil)
	require.Equal(t, response.INVALID_TRANSITION, resp.Code)

	resp, _ = e.do(t, http.MethodGet, "/api/admin/deposits/9999", adminTok, nil)
	require.Equal(t, response.NOT_FOUND, resp.Code)

	resp, data = e.do(t, http.MethodPost, "/api/admin/bulk/approve", adminTok, gin.H{"kind": "deposit", "ids": []int{big, 9999}})
	require.Equal(t, response.BULK_VALIDATION, resp.Code)
	require.Contains(t, data["problems"], "9999")

	resp, _ = e.do(t, http.MethodPost, "/api/admin/wallets/7/adjust", adminTok, gin.H{"amount": "50", "reference": "wire-1"})
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	resp, data = e.do(t, http.MethodGet, "/api/admin/wallets/7", adminTok, nil)
	require.Equal(t, response.SUCCESS, resp.Code)
	requireAmount(t, "1050", data["wallet"].(map[string]interface{})["balance"])
}

func TestApplicationAndRefundRoutes(t *testing.T) {
	e := newEnv(t)
	user := e.token(t, userID, jwt.RoleUser)
	adminTok := e.token(t, 1, jwt.RoleAdmin)

	resp, data := e.do(t, http.MethodPost, "/api/app/applications", user, gin.H{"platform": "TIKTOK", "account_name": "brand", "account_count": 2})
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	appID := int(data["id"].(float64))

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/applications/%d/reject", appID), adminTok, gin.H{"reason": "kyc", "refund": true})
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)

	resp, data = e.do(t, http.MethodPost, "/api/app/refunds", user, gin.H{"ad_account_id": e.accountID, "amount": "30"})
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)
	refundID := int(data["id"].(float64))

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/refunds/%d/approve", refundID), adminTok, nil)
	require.Equal(t, response.SUCCESS, resp.Code, resp.Message)

	resp, data = e.do(t, http.MethodGet, "/api/app/wallet", user, nil)
	require.Equal(t, response.SUCCESS, resp.Code)
	requireAmount(t, "1030", data["wallet"].(map[string]interface{})["balance"])
}

func TestMonitoringRoutes(t *testing.T) {
	e := newEnv(t)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp, _ := e.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, response.SUCCESS, resp.Code)
}
