package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTargetURL(t *testing.T) {
	tests := []struct {
		explicit, addr, want string
	}{
		{"", "", "http://localhost:8080/healthz"},
		{"", ":9090", "http://localhost:9090/healthz"},
		{"", "0.0.0.0:7000", "http://localhost:7000/healthz"},
		{"http://api:1/readyz", ":9090", "http://api:1/readyz"},
	}
	for _, tt := range tests {
		if got := targetURL(tt.explicit, tt.addr); got != tt.want {
			t.Errorf("targetURL(%q, %q) = %q, want %q", tt.explicit, tt.addr, got, tt.want)
		}
	}
}

func TestProbe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	if err := probe(context.Background(), srv.Client(), srv.URL); err != nil {
		t.Errorf("healthy probe: %v", err)
	}
	status.Store(http.StatusServiceUnavailable)
	if err := probe(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Error("unhealthy probe succeeded")
	}
}
