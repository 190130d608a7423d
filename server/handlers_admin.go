package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/onnwee/tank-queue/bot"
	"github.com/onnwee/tank-queue/telemetry"
)

const maxActionBody = 64 << 10

// recordingHost keeps every outbound chat line while forwarding effects to the real host.
type recordingHost struct {
	next bot.Host

	mu       sync.Mutex
	messages []string
}

func (r *recordingHost) SendMessage(ctx context.Context, text string) error {
	r.mu.Lock()
	r.messages = append(r.messages, text)
	r.mu.Unlock()
	if r.next == nil {
		return nil
	}
	return r.next.SendMessage(ctx, text)
}

func (r *recordingHost) FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error {
	if r.next == nil {
		return nil
	}
	return r.next.FulfillRedemption(ctx, rewardID, redemptionID)
}

func (r *recordingHost) CancelRedemption(ctx context.Context, rewardID, redemptionID string) error {
	if r.next == nil {
		return nil
	}
	return r.next.CancelRedemption(ctx, rewardID, redemptionID)
}

func (r *recordingHost) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.messages...)
}

// decodeArgs reads a flat JSON object into an argument bag. Numbers keep their literal
// text; nested values are rejected.
func decodeArgs(w http.ResponseWriter, r *http.Request) (bot.Args, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	args := bot.Args{}
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			args[k] = t
		case json.Number:
			args[k] = t.String()
		case bool:
			args[k] = fmt.Sprint(t)
		default:
			return nil, fmt.Errorf("field %q must be a string, number or bool", k)
		}
	}
	return args, nil
}

// HandleAdminAction runs one action from a JSON argument bag, as a stream deck or
// donation webhook would, and returns the chat lines it produced.
func (h *Handlers) HandleAdminAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Engine == nil {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	args, err := decodeArgs(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	rec := &recordingHost{next: h.deps.Engine.Host}
	eng := *h.deps.Engine
	eng.Host = rec
	if err := eng.Execute(ctx, args); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("admin action failed", slog.Any("err", err), slog.String("component", "http"))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":   "error",
			"error":    err.Error(),
			"messages": rec.lines(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"messages": rec.lines(),
	})
}
