package internalapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootbox-hub/internal/service"
	cryptoutil "lootbox-hub/pkg/crypto"
)

const testCallbackSecret = "callback-secret"

type fakeConfirmer struct {
	calls int
	err   error
}

func (f *fakeConfirmer) ConfirmDeposit(_ context.Context, depositID uuid.UUID, _ string) (*service.DepositConfirmation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &service.DepositConfirmation{
		DepositID:    depositID,
		CreditsAdded: decimal.NewFromInt(10),
		NewBalance:   decimal.NewFromInt(12),
	}, nil
}

func newCallbackRouter(confirmer *fakeConfirmer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDepositCallbackRoutes(router.Group("/api/internal"), confirmer, testCallbackSecret, nil)
	return router
}

func postConfirm(router *gin.Engine, depositID, paymentRef, signature string) *httptest.ResponseRecorder {
	body := `{"payment_ref":"` + paymentRef + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/internal/deposits/"+depositID+"/confirm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestConfirm_ValidSignatureCredits(t *testing.T) {
	confirmer := &fakeConfirmer{}
	router := newCallbackRouter(confirmer)

	id := uuid.NewString()
	sig := cryptoutil.SignCallback(testCallbackSecret, id, "pay_123")
	rec := postConfirm(router, id, "pay_123", sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if confirmer.calls != 1 {
		t.Fatalf("expected one confirm call, got %d", confirmer.calls)
	}

	var payload struct {
		Data struct {
			NewBalance string `json:"new_balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.NewBalance != "12" {
		t.Fatalf("expected new balance 12, got %q", payload.Data.NewBalance)
	}
}

func TestConfirm_RejectsBadSignature(t *testing.T) {
	confirmer := &fakeConfirmer{}
	router := newCallbackRouter(confirmer)
	id := uuid.NewString()

	cases := map[string]string{
		"missing":      "",
		"other ref":    cryptoutil.SignCallback(testCallbackSecret, id, "pay_999"),
		"other secret": cryptoutil.SignCallback("nope", id, "pay_123"),
		"garbage":      "zz",
	}
	for name, sig := range cases {
		rec := postConfirm(router, id, "pay_123", sig)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
	if confirmer.calls != 0 {
		t.Fatalf("service must not be called on rejected callbacks, got %d calls", confirmer.calls)
	}
}

func TestConfirm_AlreadyCompletedIsConflict(t *testing.T) {
	confirmer := &fakeConfirmer{err: &service.Error{
		Kind:    service.KindInvalidState,
		Code:    "DEPOSIT_NOT_PENDING",
		Message: "deposit not pending",
		Details: map[string]any{"status": "completed"},
	}}
	router := newCallbackRouter(confirmer)

	id := uuid.NewString()
	rec := postConfirm(router, id, "pay_1", cryptoutil.SignCallback(testCallbackSecret, id, "pay_1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "DEPOSIT_NOT_PENDING") {
		t.Fatalf("expected reason in body, got %s", rec.Body.String())
	}
}

func TestConfirm_InvalidID(t *testing.T) {
	router := newCallbackRouter(&fakeConfirmer{})
	rec := postConfirm(router, "not-a-uuid", "pay_1", "sig")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
