package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.POST("/api/v1/coupons/redeem", func(c *gin.Context) {
		c.Status(http.StatusUnprocessableEntity)
	})
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/redeem", strings.NewReader(`{"code":"GIFT-1234"}`))
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get(requestIDHeader))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}

	redeem := entries[0]
	if redeem.Level != zapcore.WarnLevel {
		t.Fatalf("4xx should log at warn, got %s", redeem.Level)
	}
	fields := redeem.ContextMap()
	if fields["request_id"] != "req-42" || fields["route"] != "/api/v1/coupons/redeem" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	for key, value := range fields {
		if s, ok := value.(string); ok && strings.Contains(s, "GIFT-1234") {
			t.Fatalf("request body leaked into %s", key)
		}
	}

	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("probe should log at debug, got %s", entries[1].Level)
	}
}
