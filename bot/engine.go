// Package bot classifies inbound host events and runs the token and queue actions
// against the persisted ledger state.
//
// Every invocation is one Engine.Execute call: expired tokens are swept, the argument
// bag is classified into an Event, and the matching handler mutates state inside a single
// store.StateStore.Update. Outbound effects (chat replies, redemption updates, overlay
// writes) are collected while the state is locked and flushed after the save; they are
// best-effort and never roll the state back.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/tank-queue/config"
	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/overlay"
	"github.com/onnwee/tank-queue/store"
	"github.com/onnwee/tank-queue/telemetry"
)

// Host carries out the side effects of an action.
type Host interface {
	SendMessage(ctx context.Context, text string) error
	FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error
	CancelRedemption(ctx context.Context, rewardID, redemptionID string) error
}

// Engine dispatches classified events. Settings and Messages are re-read from KV on
// every Execute so operator changes apply immediately.
type Engine struct {
	Store    *store.StateStore
	KV       config.Getter
	Host     Host
	Messages config.Messages // base templates; msg.* keys in KV override them

	// Now is the clock; Location formats expiry times for users (local time when nil).
	Now      func() time.Time
	Location *time.Location
	NewID    func() string
}

// NewEngine wires an engine with the real clock and uuid item ids.
func NewEngine(st *store.StateStore, kv config.Getter, host Host, base config.Messages) *Engine {
	return &Engine{
		Store:    st,
		KV:       kv,
		Host:     host,
		Messages: base,
		Now:      time.Now,
		NewID:    func() string { return uuid.NewString() },
	}
}

// run is the per-invocation context shared by handlers.
type run struct {
	settings config.Settings
	msgs     config.Messages
	ledger   *ledger.Ledger
	fx       *effects
}

// effects are the outbound calls decided while the state was locked.
type effects struct {
	messages []string
	fulfill  []ledger.QueueItem
	cancel   []ledger.QueueItem
	render   bool
}

func (f *effects) say(tpl string, pairs ...any) {
	f.messages = append(f.messages, config.Format(tpl, pairs...))
}

// Execute handles one invocation. The returned error is reserved for persistence
// failures; user mistakes become chat replies and everything else a log line.
func (e *Engine) Execute(ctx context.Context, args Args) (err error) {
	r := e.newRun(ctx)
	ev := Classify(args, r.settings)

	ctx, span := telemetry.StartSpan(ctx, "bot."+ev.Action(), attribute.String("action", ev.Action()))
	defer func() { telemetry.EndSpan(span, err) }()
	if telemetry.Actions != nil {
		telemetry.Actions.WithLabelValues(ev.Action()).Inc()
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"), slog.String("action", ev.Action()))
	log.Debug("action classified", slog.Int("args", len(args)))

	if err := e.sweep(ctx, r); err != nil {
		return err
	}

	telemetry.TimeFunc(telemetry.ActionDuration, func() {
		err = e.dispatch(ctx, r, ev)
	})
	if err != nil {
		log.Error("action failed", slog.Any("err", err))
	}
	return err
}

func (e *Engine) newRun(ctx context.Context) *run {
	s := config.LoadSettings(ctx, e.KV)
	return &run{
		settings: s,
		msgs:     config.LoadMessages(ctx, e.KV, e.Messages),
		ledger:   &ledger.Ledger{TTL: s.TTL, Now: e.Now},
		fx:       &effects{},
	}
}

func (e *Engine) sweep(ctx context.Context, r *run) error {
	_, err := e.Store.Update(ctx, func(st *ledger.State) error {
		if !r.ledger.Sweep(st) {
			return store.ErrNoChange
		}
		telemetry.LoggerWithCorr(ctx).Info("expired tokens swept", slog.String("component", "bot"))
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep expired tokens: %w", err)
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, r *run, ev Event) error {
	switch ev := ev.(type) {
	case BalanceQuery:
		return e.handleBalance(ctx, r, ev)
	case HelpRequest:
		return e.handleHelp(ctx, r)
	case Support:
		return e.handleCredit(ctx, r, ev)
	case AdminAdjust:
		return e.handleAdjust(ctx, r, ev)
	case RedeemRequest:
		return e.handleRedeem(ctx, r, ev)
	case ManualEnqueue:
		return e.handleManualEnqueue(ctx, r, ev)
	case QueueControl:
		return e.handleQueueControl(ctx, r, ev)
	case Unknown:
		telemetry.LoggerWithCorr(ctx).Warn("unknown action ignored", slog.String("reason", ev.Reason), slog.String("component", "bot"))
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}

// update runs fn under the store lock and flushes the collected effects afterwards.
// Effects are flushed for ErrNoChange too: rejections still reply and cancel.
func (e *Engine) update(ctx context.Context, r *run, fn func(*ledger.State) error) error {
	st, err := e.Store.Update(ctx, fn)
	if err != nil {
		return err
	}
	e.flush(ctx, r, st)
	return nil
}

func (e *Engine) flush(ctx context.Context, r *run, st *ledger.State) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"))
	for _, it := range r.fx.cancel {
		if !it.HasRedemption() {
			continue
		}
		if err := e.Host.CancelRedemption(ctx, it.RewardID, it.RedemptionID); err != nil {
			log.Warn("cancel redemption failed", slog.String("redemption", it.RedemptionID), slog.Any("err", err))
			telemetry.CountSideEffectFailure("cancel")
		}
	}
	for _, it := range r.fx.fulfill {
		if !it.HasRedemption() {
			continue
		}
		if err := e.Host.FulfillRedemption(ctx, it.RewardID, it.RedemptionID); err != nil {
			log.Warn("fulfill redemption failed", slog.String("redemption", it.RedemptionID), slog.Any("err", err))
			telemetry.CountSideEffectFailure("fulfill")
		}
	}
	for _, m := range r.fx.messages {
		if err := e.Host.SendMessage(ctx, m); err != nil {
			log.Warn("send message failed", slog.Any("err", err))
			telemetry.CountSideEffectFailure("message")
		}
	}
	if r.fx.render && st != nil {
		e.render(ctx, r.settings, st)
	}
	*r.fx = effects{}
}

func (e *Engine) render(ctx context.Context, s config.Settings, st *ledger.State) {
	telemetry.SetQueueDepth(len(st.SupporterQueue), len(st.NormalQueue), len(st.Users))
	if s.QueueHTMLPath == "" {
		return
	}
	if err := overlay.WriteFile(s.QueueHTMLPath, st, OverlayOptions(s)); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("overlay write failed", slog.String("path", s.QueueHTMLPath), slog.Any("err", err), slog.String("component", "bot"))
		telemetry.CountSideEffectFailure("overlay")
	}
}

// OverlayOptions maps settings onto overlay rendering options.
func OverlayOptions(s config.Settings) overlay.Options {
	return overlay.Options{Lines: s.QueueLines, NormalIconPath: s.NormalIconPath}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

// callerKey is the wallet key of c: its platform id, or a manual placeholder.
func callerKey(c Caller) string {
	if c.UserID != "" {
		return ledger.DurableID(c.UserID).Key()
	}
	return ledger.ProvisionalName(ledger.ProvisionalManual, c.UserName).Key()
}

// mergeCaller folds a provisional wallet into c's durable key on first sight.
func mergeCaller(ctx context.Context, st *ledger.State, c Caller) {
	if c.UserID == "" {
		return
	}
	if old := ledger.MergeIdentity(st, ledger.DurableID(c.UserID), c.UserName); old != "" {
		telemetry.LoggerWithCorr(ctx).Info("merged provisional wallet",
			slog.String("from", old), slog.String("to", c.UserID), slog.String("user", c.UserName), slog.String("component", "bot"))
	}
}

// parseErrorText renders a parser error for chat.
func parseErrorText(r *run, err error) string {
	switch {
	case errors.Is(err, ledger.ErrNameRequired):
		return r.msgs.TankNameMissing
	case errors.Is(err, ledger.ErrNameTooLong):
		return config.Format(r.msgs.TankNameTooLong, "maxLength", r.settings.Parser().MaxNameLength)
	}
	return err.Error()
}
