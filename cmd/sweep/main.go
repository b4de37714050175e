// Command sweep runs the renewal sweep and the reservation reaper once and
// exits. It is meant for an external scheduler such as a Kubernetes CronJob.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/saju/internal/app"
	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("sweep failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.NewScheduler()
	if err != nil {
		return err
	}

	var errs []error
	for _, job := range []string{scheduler.JobRenewalSweep, scheduler.JobReservationReaper} {
		err := s.RunNow(ctx, job)
		switch {
		case errors.Is(err, scheduler.ErrJobLocked):
			a.Log.InfoContext(ctx, "job is running elsewhere", slog.String("job", job))
		case err != nil:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
