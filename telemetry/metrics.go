// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and correlation-id
// aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TokensCredited     *prometheus.CounterVec // by source: twitch, tips, manual
	TokensConsumed     prometheus.Counter
	TokensRemoved      prometheus.Counter
	QueueAdmissions    *prometheus.CounterVec // by lane, category
	QueueRejections    *prometheus.CounterVec // by reason
	Actions            *prometheus.CounterVec // by action
	SideEffectFailures *prometheus.CounterVec // by kind: message, fulfill, cancel, overlay
	StateCorrupt       prometheus.Counter

	ActionDuration prometheus.Observer

	QueueDepth *prometheus.GaugeVec // by lane
	UsersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TokensCredited = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tankqueue_tokens_credited_total", Help: "Tokens granted, by source"}, []string{"source"})
		TokensConsumed = promauto.NewCounter(prometheus.CounterOpts{Name: "tankqueue_tokens_consumed_total", Help: "Tokens spent on supporter requests"})
		TokensRemoved = promauto.NewCounter(prometheus.CounterOpts{Name: "tankqueue_tokens_removed_total", Help: "Tokens removed by moderators"})
		QueueAdmissions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tankqueue_admissions_total", Help: "Requests admitted to a queue"}, []string{"lane", "category"})
		QueueRejections = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tankqueue_rejections_total", Help: "Requests rejected before admission"}, []string{"reason"})
		Actions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tankqueue_actions_total", Help: "Classified inbound actions"}, []string{"action"})
		SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tankqueue_side_effect_failures_total", Help: "Best-effort outbound calls that failed"}, []string{"kind"})
		StateCorrupt = promauto.NewCounter(prometheus.CounterOpts{Name: "tankqueue_state_corrupt_total", Help: "Stored ledger blobs that failed to parse and were replaced"})
		ActionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tankqueue_action_duration_seconds", Help: "Time to handle one inbound action", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}})
		QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "tankqueue_queue_depth", Help: "Items waiting per lane"}, []string{"lane"})
		UsersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tankqueue_users", Help: "Users holding live tokens"})
	})
}

// SetQueueDepth records the current lane lengths and wallet count.
func SetQueueDepth(supporter, normal, users int) {
	if QueueDepth == nil {
		return
	}
	QueueDepth.WithLabelValues("supporter").Set(float64(supporter))
	QueueDepth.WithLabelValues("normal").Set(float64(normal))
	UsersGauge.Set(float64(users))
}

// CountSideEffectFailure increments the failure counter for kind if metrics are live.
func CountSideEffectFailure(kind string) {
	if SideEffectFailures != nil {
		SideEffectFailures.WithLabelValues(kind).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
