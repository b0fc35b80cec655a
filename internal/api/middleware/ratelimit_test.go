package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
)

type fakeClock struct{ at time.Time }

func (f *fakeClock) now() time.Time { return f.at }

func newTestLimiter(limit int) (*Limiter, *fakeClock) {
	clock := &fakeClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewLimiter("test", limit, time.Minute)
	limiter.now = clock.now
	return limiter, clock
}

func TestLimiter_SlidingWindow(t *testing.T) {
	limiter, clock := newTestLimiter(2)

	if ok, _ := limiter.Allow("a"); !ok {
		t.Fatal("first hit rejected")
	}
	clock.at = clock.at.Add(20 * time.Second)
	if ok, _ := limiter.Allow("a"); !ok {
		t.Fatal("second hit rejected")
	}

	ok, wait := limiter.Allow("a")
	if ok {
		t.Fatal("third hit inside the window allowed")
	}
	if wait != 40*time.Second {
		t.Fatalf("expected 40s until the oldest hit expires, got %s", wait)
	}

	clock.at = clock.at.Add(41 * time.Second)
	if ok, _ := limiter.Allow("a"); !ok {
		t.Fatal("hit after the oldest expired rejected")
	}
	if ok, _ := limiter.Allow("a"); ok {
		t.Fatal("window should be full again")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(1)

	if ok, _ := limiter.Allow("a"); !ok {
		t.Fatal("a rejected")
	}
	if ok, _ := limiter.Allow("b"); !ok {
		t.Fatal("b shares a's window")
	}
}

func TestLimiter_SweepDropsIdleKeys(t *testing.T) {
	limiter, clock := newTestLimiter(1)
	limiter.Allow("idle")
	clock.at = clock.at.Add(2 * time.Minute)

	for i := 0; i < sweepEvery; i++ {
		limiter.Allow("busy-" + strconv.Itoa(i))
	}
	if _, ok := limiter.history["idle"]; ok {
		t.Fatal("idle key survived the sweep")
	}
}

func TestLimiter_MiddlewareKeysByActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, _ := newTestLimiter(1)

	router := gin.New()
	router.POST("/open", func(c *gin.Context) {
		actor, err := service.NewActor(c.GetHeader("X-Test-User"), "user")
		if err != nil {
			t.Errorf("actor: %v", err)
			c.Abort()
			return
		}
		SetActor(c, actor, "user")
	}, limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/open", nil)
		req.Header.Set("X-Test-User", userID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	alice, bob := uuid.NewString(), uuid.NewString()
	if rec := do(alice); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}

	rec := do(alice)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":`+strconv.Itoa(response.ErrRateLimited)) {
		t.Fatalf("expected rate limited code, got %s", rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}

	if rec := do(bob); rec.Code != http.StatusOK {
		t.Fatalf("other users keep their own window, got %d", rec.Code)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		300 * time.Millisecond:  1,
		1500 * time.Millisecond: 2,
		time.Minute:             60,
	}
	for wait, want := range cases {
		if got := retryAfterSeconds(wait); got != want {
			t.Fatalf("retryAfterSeconds(%s) = %d, want %d", wait, got, want)
		}
	}
}
