package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRateLimitedHandler(t *testing.T, limit int, window time.Duration) (http.Handler, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mw := RateLimitMiddleware(redisClient, RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            window,
		KeyPrefix:         "ratelimit:test",
	}, zap.NewNop())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}
	return handler, mr, cleanup
}

func TestProperty_RequestsOverTheLimitGet429(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly limit requests pass per window, the rest get 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler, _, cleanup := newRateLimitedHandler(t, limit, time.Minute)
			defer cleanup()

			passed := 0
			blocked := 0

			for i := 0; i < limit+excess; i++ {
				req := httptest.NewRequest("POST", "/api/auth/login", nil)
				req.RemoteAddr = "10.0.0.1:51000"
				w := httptest.NewRecorder()

				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					passed++
				case http.StatusTooManyRequests:
					blocked++
				default:
					t.Logf("FAIL: Unexpected status %d", w.Code)
					return false
				}
			}

			if passed != limit {
				t.Logf("FAIL: Expected %d passed requests, got %d", limit, passed)
				return false
			}
			return blocked == excess
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitIsPerClient(t *testing.T) {
	handler, _, cleanup := newRateLimitedHandler(t, 2, time.Minute)
	defer cleanup()

	send := func(addr string) int {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:51000"); code != http.StatusOK {
			t.Fatalf("request %d from first client blocked: %d", i, code)
		}
	}
	if code := send("10.0.0.1:51000"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for exhausted client, got %d", code)
	}

	// A different client has its own counter
	if code := send("10.0.0.2:51000"); code != http.StatusOK {
		t.Fatalf("second client should not be affected, got %d", code)
	}
}

func TestRateLimitCounterExpires(t *testing.T) {
	handler, mr, cleanup := newRateLimitedHandler(t, 1, time.Second)
	defer cleanup()

	send := func() int {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:51000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("first request blocked: %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	// Advance miniredis past the window
	mr.FastForward(2 * time.Second)

	if code := send(); code != http.StatusOK {
		t.Fatalf("expected counter to reset after window, got %d", code)
	}
}

func TestRateLimitHeadersArePresent(t *testing.T) {
	handler, _, cleanup := newRateLimitedHandler(t, 5, time.Minute)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:51000"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("unexpected limit header: %q", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("unexpected remaining header: %q", w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	handler, mr, cleanup := newRateLimitedHandler(t, 1, time.Minute)
	defer cleanup()

	// With Redis down the limiter passes requests through
	mr.Close()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:51000"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected pass-through with redis down, got %d", w.Code)
		}
	}
}
