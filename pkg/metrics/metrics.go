package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can take it as an optional dependency.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ReservationsTotal    *prometheus.CounterVec
	SettlementsTotal     *prometheus.CounterVec
	GenerationsTotal     *prometheus.CounterVec
	GenerationDuration   *prometheus.HistogramVec
	TransitionsTotal     *prometheus.CounterVec
	PaymentsTotal        *prometheus.CounterVec
	SweepAccountsTotal   *prometheus.CounterVec
	ScheduledJobsTotal   *prometheus.CounterVec
	PersistenceConflicts prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saju_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_credit_reservations_total", Help: "Credit reservation attempts by result"},
			[]string{"tier", "result"},
		),
		SettlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_credit_settlements_total", Help: "Reservations committed or released"},
			[]string{"result"},
		),
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_generations_total", Help: "Generation calls by model and outcome"},
			[]string{"model", "outcome"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saju_generation_duration_seconds",
				Help:    "Generation provider latency in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 180},
			},
			[]string{"model"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_subscription_transitions_total", Help: "Applied subscription transitions"},
			[]string{"event"},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_payments_total", Help: "Recorded payments by kind and outcome"},
			[]string{"kind", "outcome"},
		),
		SweepAccountsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_renewal_sweep_accounts_total", Help: "Accounts processed by the renewal sweep"},
			[]string{"result"},
		),
		ScheduledJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "saju_scheduled_jobs_total", Help: "Scheduled job runs by result"},
			[]string{"job", "result"},
		),
		PersistenceConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "saju_persistence_conflicts_total", Help: "Optimistic concurrency conflicts"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.SettlementsTotal,
		m.GenerationsTotal,
		m.GenerationDuration,
		m.TransitionsTotal,
		m.PaymentsTotal,
		m.SweepAccountsTotal,
		m.ScheduledJobsTotal,
		m.PersistenceConflicts,
	)
	return m
}

func (m *Metrics) Reservation(tier, result string) {
	if m != nil {
		m.ReservationsTotal.WithLabelValues(tier, result).Inc()
	}
}

func (m *Metrics) Settlement(result string) {
	if m != nil {
		m.SettlementsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Generation(model, outcome string, d time.Duration) {
	if m != nil {
		m.GenerationsTotal.WithLabelValues(model, outcome).Inc()
		m.GenerationDuration.WithLabelValues(model).Observe(d.Seconds())
	}
}

func (m *Metrics) Transition(event string) {
	if m != nil {
		m.TransitionsTotal.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Payment(kind, outcome string) {
	if m != nil {
		m.PaymentsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) SweepAccount(result string) {
	if m != nil {
		m.SweepAccountsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ScheduledJob(job, result string) {
	if m != nil {
		m.ScheduledJobsTotal.WithLabelValues(job, result).Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.PersistenceConflicts.Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by the chi route
// pattern, keeping label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
