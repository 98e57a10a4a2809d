package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/identity"
)

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst should allow two requests")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other keys are independent")
	}

	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("expected refill after 1.5s")
	}
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("a")

	now = now.Add(11 * time.Minute)
	rl.evict(10 * time.Minute)
	if len(rl.buckets) != 0 {
		t.Fatalf("expected idle bucket evicted, have %d", len(rl.buckets))
	}
}

func TestRateLimitMiddlewareKeysByUser(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	defer rl.Stop()
	mw := RateLimit(rl)
	next := okHandler(nil)

	send := func(p *identity.Principal) int {
		req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if p != nil {
			req = req.WithContext(identity.WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)
		return rec.Code
	}

	user := identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}
	if code := send(&user); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send(&user); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send(nil); code != http.StatusOK {
		t.Fatalf("anonymous caller has its own bucket, got %d", code)
	}
}
