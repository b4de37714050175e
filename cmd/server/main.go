package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/saju/internal/app"
	"github.com/dmitrymomot/saju/pkg/api"
	"github.com/dmitrymomot/saju/pkg/config"
	"github.com/dmitrymomot/saju/pkg/generation"
	"github.com/dmitrymomot/saju/pkg/httpserver"
	"github.com/dmitrymomot/saju/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		httpCfg   httpserver.Config
		geminiCfg generation.GeminiConfig
	)
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	if err := config.Load(&geminiCfg); err != nil {
		return err
	}

	a, err := app.New(ctx, api.RequestIDExtractor())
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := generation.NewGeminiProvider(geminiCfg, nil)
	if err != nil {
		return err
	}
	generator := generation.NewService(a.Ledger, provider,
		generation.WithTimeout(geminiCfg.Timeout),
		generation.WithLogger(a.Log.With(logger.Component("generation"))),
		generation.WithMetrics(a.Metrics),
	)

	sched, err := a.NewScheduler()
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		Accounts:       a.Accounts,
		Engine:         a.Engine,
		Ledger:         a.Ledger,
		Generator:      generator,
		IdentityHeader: a.Config.IdentityHeader,
		WebhookSecret:  a.Config.WebhookSecret,
		Metrics:        a.Metrics,
		Gatherer:       a.Registry,
		Checks:         a.Checks(),
		Logger:         a.Log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.New(httpCfg, a.Log).Run(ctx, router) })
	g.Go(func() error { return sched.Run(ctx) })
	return g.Wait()
}
