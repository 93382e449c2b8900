// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
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
	PollCycles             prometheus.Counter
	PollFailures           prometheus.Counter
	MessagesScanned        prometheus.Counter
	MessagesSkipped        prometheus.Counter // non-text system events
	MessagesFlagged        prometheus.Counter
	ClassifyFailures       prometheus.Counter
	DeletesSucceeded       prometheus.Counter
	DeletesFailed          prometheus.Counter
	BansSucceeded          prometheus.Counter
	BansFailed             prometheus.Counter

	// Histograms (seconds)
	ClassifyDuration prometheus.Observer
	PollDuration     prometheus.Observer

	// Gauges
	LastBatchSizeGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_poll_cycles_total", Help: "Number of chat poll cycles"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_poll_failures_total", Help: "Number of failed chat list calls"})
		MessagesScanned = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_messages_scanned_total", Help: "Number of messages seen by the pipeline"})
		MessagesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_messages_skipped_total", Help: "Number of system events skipped without classification"})
		MessagesFlagged = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_messages_flagged_total", Help: "Number of messages judged rule-violating"})
		ClassifyFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_classify_failures_total", Help: "Number of failed or unparseable classifications"})
		DeletesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_deletes_succeeded_total", Help: "Number of messages deleted"})
		DeletesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_deletes_failed_total", Help: "Number of failed message deletions"})
		BansSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_bans_succeeded_total", Help: "Number of authors banned"})
		BansFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_bans_failed_total", Help: "Number of failed ban attempts"})
		ClassifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "warden_classify_duration_seconds", Help: "Classification call duration seconds", Buckets: prometheus.DefBuckets})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "warden_poll_duration_seconds", Help: "Chat list call duration seconds", Buckets: prometheus.DefBuckets})
		LastBatchSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "warden_last_batch_size", Help: "Number of messages in the most recent fetched page"})
	})
}

// SetLastBatchSize records the size of the most recent fetched page.
func SetLastBatchSize(n int) {
	if LastBatchSizeGauge != nil {
		LastBatchSizeGauge.Set(float64(n))
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

// WithCorrelation returns a new context embedding the correlation id.
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
