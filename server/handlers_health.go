package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil || h.deps.DB.PingContext(r.Context()) != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.deps.DB == nil {
				return fmt.Errorf("no database")
			}
			return h.deps.DB.PingContext(r.Context())
		}},
		{"state", func() error {
			if h.deps.Store == nil {
				return fmt.Errorf("no state store")
			}
			_, err := h.deps.Store.View(r.Context())
			return err
		}},
		{"credentials", func() error {
			// only required when chat relies on the stored token
			if h.cfg.TwitchChannel == "" || h.cfg.TwitchOAuthToken != "" {
				return nil
			}
			tok, err := h.deps.DB.GetOAuthToken(r.Context(), TwitchProvider)
			if err != nil {
				return err
			}
			if tok.AccessToken == "" {
				return fmt.Errorf("missing twitch OAuth token")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
