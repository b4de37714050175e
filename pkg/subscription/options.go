package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/saju/pkg/metrics"
)

const (
	DefaultMaxAttempts    = 3
	DefaultPaymentTimeout = 30 * time.Second
	DefaultSweepBatchSize = 100
)

type options struct {
	now            func() time.Time
	logger         *slog.Logger
	metrics        *metrics.Metrics
	maxAttempts    int
	paymentTimeout time.Duration
	batchSize      int
}

// Option configures Engine, Reconciler, Sweeper and Accounts.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		now:            func() time.Time { return time.Now().UTC() },
		logger:         slog.Default(),
		maxAttempts:    DefaultMaxAttempts,
		paymentTimeout: DefaultPaymentTimeout,
		batchSize:      DefaultSweepBatchSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMaxAttempts bounds read-evaluate-write retries on version conflicts.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithPaymentTimeout bounds each gateway call.
func WithPaymentTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.paymentTimeout = d
		}
	}
}

// WithBatchSize sets how many due accounts the sweep loads per page.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}
