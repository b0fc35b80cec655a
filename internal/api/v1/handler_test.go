package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lootbox-hub/internal/api/middleware"
	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
	systemlog "lootbox-hub/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func withActor(t *testing.T, role string) gin.HandlerFunc {
	t.Helper()
	actor, err := service.NewActor(uuid.NewString(), role)
	if err != nil {
		t.Fatalf("actor: %v", err)
	}
	return func(c *gin.Context) {
		middleware.SetActor(c, actor, role)
		c.Next()
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var out response.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestWriteServiceError_Mapping(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	shortfall := &service.Error{
		Kind:    service.KindPolicyViolation,
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient funds",
		Details: map[string]any{"shortfall": "2.50"},
		Err:     service.ErrInsufficientFunds,
	}

	cases := []struct {
		name    string
		err     error
		status  int
		appCode int
		reason  string
	}{
		{name: "not found", err: &service.Error{Kind: service.KindNotFound, Code: "LOOTBOX_NOT_FOUND"}, status: http.StatusNotFound, appCode: response.ErrNotFound, reason: "LOOTBOX_NOT_FOUND"},
		{name: "invalid state", err: &service.Error{Kind: service.KindInvalidState, Code: "ALREADY_WITHDRAWN"}, status: http.StatusConflict, appCode: response.ErrInvalidState, reason: "ALREADY_WITHDRAWN"},
		{name: "policy", err: shortfall, status: http.StatusUnprocessableEntity, appCode: response.ErrPolicyViolation, reason: "INSUFFICIENT_FUNDS"},
		{name: "forbidden", err: &service.Error{Kind: service.KindForbidden}, status: http.StatusForbidden, appCode: response.ErrForbidden},
		{name: "invalid input", err: &service.Error{Kind: service.KindInvalidInput, Code: "INVALID_INPUT"}, status: http.StatusBadRequest, appCode: response.ErrInvalidInput, reason: "INVALID_INPUT"},
		{name: "invariant", err: &service.Error{Kind: service.KindInvariantViolation, Code: "SECRET_DETAIL"}, status: http.StatusInternalServerError, appCode: response.ErrInvariantViolation},
		{name: "untyped", err: errors.New("connection reset"), status: http.StatusInternalServerError, appCode: response.ErrInternal},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		writeServiceError(c, logger, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "SECRET_DETAIL") {
			t.Fatalf("%s: invariant code leaked to caller", tc.name)
		}
		body := decodeEnvelope(t, rec)
		if body.Code != tc.appCode || body.Reason != tc.reason {
			t.Fatalf("%s: expected code %d reason %q, got %d %q", tc.name, tc.appCode, tc.reason, body.Code, body.Reason)
		}
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	writeServiceError(c, logger, shortfall)
	if got := decodeEnvelope(t, rec).Details["shortfall"]; got != "2.50" {
		t.Fatalf("policy details must reach the caller, got %v", got)
	}

	if logs.FilterMessage("request failed").Len() != 1 {
		t.Fatalf("expected only the untyped error to be logged, got %d", logs.FilterMessage("request failed").Len())
	}
}

func TestHandlers_RejectMalformedInput(t *testing.T) {
	router := gin.New()
	group := router.Group("/api/v1", withActor(t, "user"))
	admin := group.Group("/admin", withActor(t, "admin"))

	RegisterLootboxRoutes(group, &service.LootboxService{}, nil, nil)
	RegisterWithdrawalRoutes(group, admin, &service.WithdrawalService{}, nil, nil)
	RegisterExchangeRoutes(group, &service.ExchangeService{}, nil)
	RegisterDepositRoutes(group, &service.DepositService{}, nil)
	RegisterCouponRoutes(group, admin, &service.CouponService{}, nil, nil)
	RegisterUserRoutes(group, admin, &service.UserService{}, nil)
	RegisterTicketRoutes(group, admin, &service.TicketService{}, nil)

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/v1/boxes/not-a-uuid/open", ""},
		{http.MethodGet, "/api/v1/draws/123/verify", ""},
		{http.MethodPost, "/api/v1/withdrawals", `{"inventory_id":"nope"}`},
		{http.MethodPost, "/api/v1/withdrawals", `{}`},
		{http.MethodPost, "/api/v1/admin/withdrawals/x/process", `{"code":"A"}`},
		{http.MethodPost, "/api/v1/exchange/calculate", `{"source_inventory_ids":["bad"],"target_item_id":"` + uuid.NewString() + `"}`},
		{http.MethodPost, "/api/v1/deposits", `{"amount":"-5","currency":"USD","payment_method":"pix"}`},
		{http.MethodPost, "/api/v1/deposits", `{"amount":"abc","currency":"USD","payment_method":"pix"}`},
		{http.MethodPost, "/api/v1/coupons/redeem", `{}`},
		{http.MethodGet, "/api/v1/inventory?status=lost", ""},
		{http.MethodPut, "/api/v1/admin/users/" + uuid.NewString() + "/status", `{}`},
		{http.MethodPost, "/api/v1/tickets", `{}`},
		{http.MethodPost, "/api/v1/tickets", `{"subject":"hi","message":"long enough message"}`},
		{http.MethodPost, "/api/v1/tickets", `{"subject":"Subject","category":"billing","message":"long enough message"}`},
		{http.MethodGet, "/api/v1/tickets/not-a-uuid", ""},
		{http.MethodPost, "/api/v1/admin/tickets/x/reply", `{"reply":"ok"}`},
		{http.MethodPost, "/api/v1/admin/tickets/" + uuid.NewString() + "/reply", `{}`},
		{http.MethodGet, "/api/v1/admin/tickets?status=pending", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d: %s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
		if body := decodeEnvelope(t, rec); body.Code != response.ErrInvalidInput {
			t.Fatalf("%s %s: expected invalid input code, got %d", tc.method, tc.path, body.Code)
		}
	}
}

func TestHandlers_RequireActor(t *testing.T) {
	router := gin.New()
	group := router.Group("/api/v1")
	RegisterUserRoutes(group, group.Group("/admin"), &service.UserService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d", rec.Code)
	}
}

func TestSystemLogs_AdminOnlyAndFiltered(t *testing.T) {
	store := systemlog.NewSystemLogStore(16)
	core, _ := observer.New(zapcore.DebugLevel)
	logger := systemlog.WrapZapLogger(zap.New(core), store)
	logger.Named("fairness").Info("draw executed")
	logger.Warn("withdrawal backlog")

	handler := NewSystemHandler(SystemHandlerConfig{LogStore: store}, nil)

	for role, status := range map[string]int{"user": http.StatusForbidden, "moderator": http.StatusForbidden, "admin": http.StatusOK} {
		router := gin.New()
		RegisterSystemRoutes(router.Group("/api/v1", withActor(t, role)), handler)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/logs?level=warn", nil))
		if rec.Code != status {
			t.Fatalf("role %s: expected %d, got %d", role, status, rec.Code)
		}
		if status != http.StatusOK {
			continue
		}
		body := decodeEnvelope(t, rec)
		if body.Pagination == nil || body.Pagination.Total != 1 {
			t.Fatalf("expected one warn entry, got %+v", body.Pagination)
		}
	}

	router := gin.New()
	RegisterSystemRoutes(router.Group("/api/v1", withActor(t, "admin")), handler)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/logs?from=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad time, got %d", rec.Code)
	}
}

func TestDashboard_OperatorOnly(t *testing.T) {
	router := gin.New()
	RegisterDashboardRoutes(router.Group("/api/v1/admin", withActor(t, "user")), &service.DashboardService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/dashboard", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d: %s", rec.Code, rec.Body.String())
	}
}
