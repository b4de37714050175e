// Package redis connects to Redis and provides a distributed Locker.
//
// The Locker keeps scheduled jobs (renewal sweep, reservation reaper) from
// running on more than one server replica at a time:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil { ... }
//	locker := redis.NewLocker(client, cfg.LockPrefix)
//
//	lock, err := locker.Acquire(ctx, "renewal-sweep", time.Minute)
//	if errors.Is(err, redis.ErrLockNotAcquired) {
//		return nil // another replica is running it
//	}
//	defer lock.Release(ctx)
//
// Healthcheck returns a probe for readiness endpoints.
package redis
