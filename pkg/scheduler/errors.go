package scheduler

import "errors"

var (
	ErrInvalidSchedule = errors.New("invalid cron schedule")
	ErrDuplicateJob    = errors.New("job already registered")
	ErrUnknownJob      = errors.New("unknown job")
	ErrJobLocked       = errors.New("job is running on another instance")
	ErrAlreadyStarted  = errors.New("scheduler already started")
)
