package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/saju/pkg/generation"
	"github.com/dmitrymomot/saju/pkg/httpserver"
	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/metrics"
	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
	"github.com/dmitrymomot/saju/pkg/webhook"
)

const DefaultIdentityHeader = "X-Identity-Ref"

// Deps wires the router. Accounts, Engine, Ledger, Generator and
// WebhookSecret are required.
type Deps struct {
	Accounts  *subscription.Accounts
	Engine    *subscription.Engine
	Ledger    *quota.Ledger
	Generator *generation.Service

	// IdentityHeader names the trusted header holding the identity reference.
	IdentityHeader string
	WebhookSecret  string
	// WebhookMaxAge bounds replayed deliveries; zero means five minutes.
	WebhookMaxAge time.Duration

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Checks   []httpserver.Check
	Logger   *slog.Logger
}

type handlers struct {
	accounts       *subscription.Accounts
	engine         *subscription.Engine
	ledger         *quota.Ledger
	generator      *generation.Service
	identityHeader string
	log            *slog.Logger
}

// NewRouter builds the HTTP surface of the service. It panics on missing
// required dependencies.
func NewRouter(d Deps) http.Handler {
	if d.Accounts == nil || d.Engine == nil || d.Ledger == nil || d.Generator == nil {
		panic("api: accounts, engine, ledger and generator are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.IdentityHeader == "" {
		d.IdentityHeader = DefaultIdentityHeader
	}
	if d.WebhookMaxAge <= 0 {
		d.WebhookMaxAge = 5 * time.Minute
	}
	log := d.Logger.With(logger.Component("api"))

	h := &handlers{
		accounts:       d.Accounts,
		engine:         d.Engine,
		ledger:         d.Ledger,
		generator:      d.Generator,
		identityHeader: d.IdentityHeader,
		log:            log,
	}
	verifier := webhook.NewVerifier(d.WebhookSecret, d.WebhookMaxAge)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(d.Metrics.Middleware)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthHandler(log, d.Checks...))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	r.With(verifier.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		respondError(w, r, log, err)
	})).Post("/webhooks/identity", h.identityWebhook)

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.identity)

		r.Get("/subscription", h.getSubscription)
		r.Post("/subscription/upgrade", h.upgrade)
		r.Post("/subscription/cancel", h.cancel)
		r.Post("/subscription/resume", h.resume)

		r.Post("/generations", h.createGeneration)
		r.Get("/generations", h.listGenerations)
		r.Get("/generations/{id}", h.getGeneration)
	})

	return r
}
