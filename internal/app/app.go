// Package app assembles the shared runtime of the saju binaries from
// environment configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/saju/pkg/config"
	"github.com/dmitrymomot/saju/pkg/httpserver"
	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/metrics"
	"github.com/dmitrymomot/saju/pkg/pg"
	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/redis"
	"github.com/dmitrymomot/saju/pkg/scheduler"
	"github.com/dmitrymomot/saju/pkg/storage/postgres"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

// App owns connections and domain services. Close releases them.
type App struct {
	Config    config.App
	Scheduler scheduler.Config
	Log       *slog.Logger

	Pool     *pgxpool.Pool
	Redis    *goredis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Catalog  subscription.Catalog
	Store    *postgres.Store
	Accounts *subscription.Accounts
	Engine   *subscription.Engine
	Sweeper  *subscription.Sweeper
	Ledger   *quota.Ledger
	Locker   *redis.Locker
}

// New loads configuration, connects to Postgres and Redis, applies
// migrations and builds the subscription and quota services.
func New(ctx context.Context, extractors ...logger.ContextExtractor) (*App, error) {
	a := &App{}
	if err := config.Load(&a.Config); err != nil {
		return nil, err
	}
	if err := config.Load(&a.Scheduler); err != nil {
		return nil, err
	}
	a.Log = logger.New(
		logger.WithEnvironment(a.Config.Env, a.Config.ServiceName),
		logger.WithContextExtractors(extractors...),
	)

	var (
		pgCfg     pg.Config
		redisCfg  redis.Config
		stripeCfg subscription.StripeConfig
	)
	for _, load := range []func() error{
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&stripeCfg) },
	} {
		if err := load(); err != nil {
			return nil, err
		}
	}

	catalog, err := loadCatalog(a.Config.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if a.Pool, err = pg.Connect(ctx, pgCfg); err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, a.Pool, pgCfg, a.Log); err != nil {
		a.Close()
		return nil, err
	}
	if a.Redis, err = redis.Connect(ctx, redisCfg); err != nil {
		a.Close()
		return nil, err
	}
	a.Locker = redis.NewLocker(a.Redis, redisCfg.LockPrefix)

	gateway, err := subscription.NewStripeGateway(stripeCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Store = postgres.New(a.Pool, postgres.WithCatalog(catalog))
	subOpts := []subscription.Option{
		subscription.WithLogger(a.Log.With(logger.Component("subscription"))),
		subscription.WithMetrics(a.Metrics),
	}
	a.Accounts = subscription.NewAccounts(a.Store, catalog, subOpts...)
	a.Engine = subscription.NewEngine(a.Store, gateway, catalog, subOpts...)
	a.Sweeper = subscription.NewSweeper(a.Store, gateway, catalog, subOpts...)
	a.Ledger = quota.NewLedger(a.Store, a.Store, catalog,
		quota.WithLogger(a.Log.With(logger.Component("quota"))),
		quota.WithMetrics(a.Metrics),
	)
	return a, nil
}

// NewScheduler returns a scheduler with the renewal sweep and the reservation
// reaper registered, guarded by the Redis locker.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(
		scheduler.WithLocker(a.Locker),
		scheduler.WithLockTTL(a.Scheduler.LockTTL),
		scheduler.WithLogger(a.Log.With(logger.Component("scheduler"))),
		scheduler.WithMetrics(a.Metrics),
	)
	if err := scheduler.RegisterDefaults(s, a.Scheduler, a.Sweeper, a.Ledger, a.Log); err != nil {
		return nil, err
	}
	return s, nil
}

// Checks lists the readiness probes of the backing services.
func (a *App) Checks() []httpserver.Check {
	return []httpserver.Check{
		{Name: "postgres", Probe: pg.Healthcheck(a.Pool)},
		{Name: "redis", Probe: redis.Healthcheck(a.Redis)},
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error("close redis", logger.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func loadCatalog(path string) (subscription.Catalog, error) {
	if path == "" {
		return subscription.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return subscription.Catalog{}, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	c, err := subscription.LoadCatalog(f)
	if err != nil {
		return subscription.Catalog{}, errors.Join(fmt.Errorf("load catalog %s", path), err)
	}
	return c, nil
}
