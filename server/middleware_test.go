package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/tank-queue/config"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{"remote with port", "192.0.2.1:1234", "", "192.0.2.1"},
		{"ipv6 remote", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"forwarded single", "10.0.0.1:1", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:1", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
		{"no port", "192.0.2.9", "", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://overlay.example.com", "*.stream.tv"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://overlay.example.com", true},
		{"https://evil.example.com", false},
		{"https://studio.stream.tv", true},
		{"https://stream.tv", true},
		{"https://notstream.tv", false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("permissive in development", func(t *testing.T) {
		h := withCORS(ok, &config.Config{})
		r := httptest.NewRequest(http.MethodGet, "/queue", nil)
		r.Header.Set("Origin", "https://anything.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q, want *", got)
		}
	})

	t.Run("restricted in production", func(t *testing.T) {
		cfg := &config.Config{Env: "production", CORSAllowedOrigins: []string{"https://overlay.example.com"}}
		h := withCORS(ok, cfg)
		for origin, want := range map[string]string{
			"https://overlay.example.com": "https://overlay.example.com",
			"https://evil.example.com":    "",
		} {
			r := httptest.NewRequest(http.MethodGet, "/queue", nil)
			r.Header.Set("Origin", origin)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, r)
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != want {
				t.Errorf("origin %s: allow origin = %q, want %q", origin, got, want)
			}
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		called := false
		h := withCORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }), &config.Config{})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/config", nil))
		if rr.Code != http.StatusNoContent || called {
			t.Errorf("preflight = %d, handler called = %v", rr.Code, called)
		}
	})
}

func TestIPRateLimiterRefillsAndCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, true, 2, time.Minute)
	now := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("burst not allowed")
	}
	if rl.allow("a") {
		t.Fatal("third request allowed")
	}
	if !rl.allow("b") {
		t.Error("other ip limited")
	}

	now = now.Add(30 * time.Second)
	if !rl.allow("a") {
		t.Error("token not refilled after half a window")
	}

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors after cleanup = %d, want 0", n)
	}
}

func TestIPRateLimiterDisabled(t *testing.T) {
	rl := newIPRateLimiter(context.Background(), false, 1, time.Minute)
	for i := 0; i < 5; i++ {
		if !rl.allow("a") {
			t.Fatalf("request %d limited while disabled", i)
		}
	}
}
