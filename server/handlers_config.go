package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/onnwee/tank-queue/bot"
	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/overlay"
	"github.com/onnwee/tank-queue/telemetry"
)

func editableKeys() map[string]bool {
	keys := map[string]bool{}
	for _, k := range config.SettingKeys() {
		keys[k] = true
	}
	for _, k := range config.MessageKeys() {
		keys[k] = true
	}
	return keys
}

type configUpdate struct {
	Updated []string `json:"updated"`
	Cleared []string `json:"cleared"`
	Ignored []string `json:"ignored"`
}

// HandleConfig reads and writes the cfg.* and msg.* overrides. GET returns the stored
// overrides; PUT sets each known key and clears it when the value is empty.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if h.deps.KV == nil {
		http.Error(w, "settings store unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		out := map[string]string{}
		for _, prefix := range []string{config.SettingPrefix, config.MessagePrefix} {
			vals, err := h.deps.KV.List(ctx, prefix)
			if err != nil {
				telemetry.LoggerWithCorr(ctx).Error("list settings", slog.Any("err", err), slog.String("component", "http"))
				http.Error(w, "failed to read config", http.StatusInternalServerError)
				return
			}
			for k, v := range vals {
				out[k] = v
			}
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		known := editableKeys()
		res := configUpdate{Updated: []string{}, Cleared: []string{}, Ignored: []string{}}
		for k, v := range body {
			if !known[k] {
				res.Ignored = append(res.Ignored, k)
				continue
			}
			v = strings.TrimSpace(v)
			var err error
			if v == "" {
				err = h.deps.KV.Delete(ctx, k)
				res.Cleared = append(res.Cleared, k)
			} else {
				err = h.deps.KV.Set(ctx, k, v)
				res.Updated = append(res.Updated, k)
			}
			if err != nil {
				telemetry.LoggerWithCorr(ctx).Error("failed to update config", slog.String("key", k), slog.Any("err", err), slog.String("component", "http"))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		sort.Strings(res.Updated)
		sort.Strings(res.Cleared)
		sort.Strings(res.Ignored)
		telemetry.LoggerWithCorr(ctx).Info("config updated", slog.Any("updated", res.Updated), slog.Any("cleared", res.Cleared), slog.String("component", "http"))
		writeJSON(w, http.StatusOK, res)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStatus returns queue depths, wallet totals and the effective runtime settings.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.viewState(w, r)
	if !ok {
		return
	}
	s := h.settings(r)
	l := &ledger.Ledger{TTL: s.TTL}
	outstanding, holders := 0, 0
	for _, u := range st.Users {
		if n := l.ActiveBalance(u); n > 0 {
			outstanding += n
			holders++
		}
	}
	telemetry.SetQueueDepth(len(st.SupporterQueue), len(st.NormalQueue), len(st.Users))
	writeJSON(w, http.StatusOK, map[string]any{
		"supporter_queue":    len(st.SupporterQueue),
		"normal_queue":       len(st.NormalQueue),
		"users":              len(st.Users),
		"token_holders":      holders,
		"tokens_outstanding": outstanding,
		"chat_enabled":       h.cfg.TwitchChannel != "",
		"helix_enabled":      h.cfg.HelixReady(),
		"settings": map[string]any{
			"ttl_hours":       s.TTLHours(),
			"bits_per_token":  s.BitsPerToken,
			"tip_per_token":   s.TipPerToken,
			"tier_tokens":     s.TierTokens,
			"cost_arty":       s.CostArty,
			"cost_blacklist":  s.CostBlacklist,
			"cost_troll":      s.CostTroll,
			"max_name_length": s.MaxNameLength,
			"battle_minutes":  s.BattleMinutes,
		},
	})
}

type queueEntry struct {
	Position   int       `json:"position"`
	User       string    `json:"user"`
	Tank       string    `json:"tank"`
	Mult       int       `json:"mult"`
	Category   string    `json:"category,omitempty"`
	AdmittedAt time.Time `json:"admitted_at"`
}

func queueEntries(items []ledger.QueueItem, offset int) []queueEntry {
	out := make([]queueEntry, len(items))
	for i, it := range items {
		out[i] = queueEntry{
			Position:   offset + i + 1,
			User:       it.User,
			Tank:       it.Tank,
			Mult:       it.Mult,
			Category:   string(it.SpecialType),
			AdmittedAt: it.AdmittedAt,
		}
	}
	return out
}

// HandleQueue returns both lanes in service order; normal positions continue after the
// supporter lane.
func (h *Handlers) HandleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.viewState(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"supporter": queueEntries(st.SupporterQueue, 0),
		"normal":    queueEntries(st.NormalQueue, len(st.SupporterQueue)),
	})
}

// HandleOverlay serves the overlay page rendered from the current state.
func (h *Handlers) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := h.viewState(w, r)
	if !ok {
		return
	}
	page, err := overlay.Render(st, bot.OverlayOptions(h.settings(r)))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("render overlay", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

func (h *Handlers) viewState(w http.ResponseWriter, r *http.Request) (*ledger.State, bool) {
	if h.deps.Store == nil {
		http.Error(w, "state store unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	st, err := h.deps.Store.View(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("load state", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "failed to load state", http.StatusInternalServerError)
		return nil, false
	}
	return st, true
}

func (h *Handlers) settings(r *http.Request) config.Settings {
	if h.deps.KV == nil {
		return config.DefaultSettings()
	}
	return config.LoadSettings(r.Context(), h.deps.KV)
}
