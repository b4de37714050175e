// Package scheduler runs the periodic maintenance jobs: the renewal sweep and
// the stale reservation reaper.
//
// Jobs are registered under a name with a cron expression and guarded by a
// Locker, so with several replicas sharing one Redis only one of them runs a
// given job at a time. RunNow executes a job out of schedule under the same
// lock, which is what cmd/sweep uses for manual runs.
package scheduler
