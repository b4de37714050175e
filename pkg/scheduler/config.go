package scheduler

import "time"

type Config struct {
	SweepSchedule       string        `env:"SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
	ReaperSchedule      string        `env:"REAPER_SCHEDULE" envDefault:"*/5 * * * *"`
	StaleReservationAge time.Duration `env:"STALE_RESERVATION_AGE" envDefault:"10m"`
	// LockTTL bounds how long a crashed replica can block a job.
	LockTTL time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"10m"`
}
