package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/metrics"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Locker provides cross-process mutual exclusion. *redis.Locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, held bool, err error)
}

type Option func(*Scheduler)

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler runs named jobs on cron schedules. Without a Locker every
// replica runs every job.
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	jobs    map[string]Job
	baseCtx context.Context
	started bool
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		lockTTL: 10 * time.Minute,
		log:     slog.Default(),
		jobs:    make(map[string]Job),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("scheduler"))
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{s.log}),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	return s
}

// Register adds a job under a unique name. spec is a standard five-field
// cron expression or a descriptor such as "@every 1m".
func (s *Scheduler) Register(name, spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("scheduler: job %q is nil", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if _, ok := s.jobs[name]; ok {
		return errors.Join(ErrDuplicateJob, fmt.Errorf("job %q", name))
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		if err := s.run(ctx, name, job); err != nil && !errors.Is(err, ErrJobLocked) {
			s.log.ErrorContext(ctx, "scheduled job failed", slog.String("job", name), logger.Error(err))
		}
	})
	if err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}
	s.jobs[name] = job
	return nil
}

// RunNow runs a registered job immediately, under the same lock as its
// scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return errors.Join(ErrUnknownJob, fmt.Errorf("job %q", name))
	}
	return s.run(ctx, name, job)
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.InfoContext(ctx, "scheduler started", slog.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	if s.locker != nil {
		release, held, err := s.locker.TryLock(ctx, name, s.lockTTL)
		if err != nil {
			s.metrics.ScheduledJob(name, "lock_error")
			return fmt.Errorf("acquire lock for %q: %w", name, err)
		}
		if !held {
			s.metrics.ScheduledJob(name, "skipped")
			s.log.DebugContext(ctx, "job locked by another instance", slog.String("job", name))
			return ErrJobLocked
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.WarnContext(ctx, "release job lock", slog.String("job", name), logger.Error(err))
			}
		}()
	}

	started := time.Now()
	err := job(ctx)
	if err != nil {
		s.metrics.ScheduledJob(name, "error")
		return err
	}
	s.metrics.ScheduledJob(name, "ok")
	s.log.InfoContext(ctx, "job finished", slog.String("job", name), logger.Duration(time.Since(started)))
	return nil
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
