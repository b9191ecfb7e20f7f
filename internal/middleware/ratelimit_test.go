package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stagewire/platform/internal/logging"
)

func limiterRequest(t *testing.T, rl *RateLimiter, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/control/sessions", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	rl.Handler(next).ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.NewDefault("test"))

	if rec := limiterRequest(t, rl, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}
	if rec := limiterRequest(t, rl, "10.0.0.1:5678"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request from same IP status = %d, want 429", rec.Code)
	}
	// A different caller has its own budget.
	if rec := limiterRequest(t, rl, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Fatalf("other IP status = %d, want 200", rec.Code)
	}
}

func TestRateLimiterCleanupBound(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.NewDefault("test"))

	for i := 0; i < 10001; i++ {
		rl.getLimiter(fmt.Sprintf("key-%d", i))
	}
	rl.Cleanup()
	if got := len(rl.limiters); got != 0 {
		t.Fatalf("limiter table should reset past the bound, len = %d", got)
	}

	// Below the bound the table is kept.
	rl.getLimiter("key")
	rl.Cleanup()
	if got := len(rl.limiters); got != 1 {
		t.Fatalf("small table must survive cleanup, len = %d", got)
	}
}

func TestRateLimiterStopCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.NewDefault("test"))
	rl.StartCleanup(time.Millisecond)

	rl.StopCleanup()
	// Idempotent.
	rl.StopCleanup()

	select {
	case <-rl.stop:
	default:
		t.Fatal("stop channel should be closed")
	}
}
