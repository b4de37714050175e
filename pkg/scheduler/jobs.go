package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

const (
	JobRenewalSweep      = "renewal-sweep"
	JobReservationReaper = "reservation-reaper"
)

// SweepJob runs one renewal sweep at the current time. The sweeper logs its
// own report.
func SweepJob(sweeper *subscription.Sweeper, now func() time.Time) Job {
	return func(ctx context.Context) error {
		_, err := sweeper.Run(ctx, now())
		return err
	}
}

// ReaperJob releases reservations left pending longer than olderThan.
func ReaperJob(ledger *quota.Ledger, olderThan time.Duration, log *slog.Logger) Job {
	return func(ctx context.Context) error {
		n, err := ledger.ReapStale(ctx, olderThan)
		if n > 0 {
			log.InfoContext(ctx, "released stale reservations", logger.Component("scheduler"), slog.Int("count", n))
		}
		return err
	}
}

// RegisterDefaults registers the sweep and the reaper with cfg's schedules.
func RegisterDefaults(s *Scheduler, cfg Config, sweeper *subscription.Sweeper, ledger *quota.Ledger, log *slog.Logger) error {
	if err := s.Register(JobRenewalSweep, cfg.SweepSchedule, SweepJob(sweeper, time.Now)); err != nil {
		return err
	}
	return s.Register(JobReservationReaper, cfg.ReaperSchedule, ReaperJob(ledger, cfg.StaleReservationAge, log))
}
