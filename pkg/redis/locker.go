package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out expiring mutual-exclusion locks shared by every replica
// connected to the same Redis.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	if client == nil {
		panic("redis: client is required")
	}
	return &Locker{client: client, prefix: prefix}
}

// Lock is a held lock. Release it when the guarded work is done.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the named lock for ttl. It does not wait: if another owner
// holds it ErrLockNotAcquired is returned.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

// Release frees the lock. ErrLockNotHeld means it expired before release.
func (k *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.locker.client, []string{k.key}, k.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// TryLock is Acquire in the shape the job scheduler consumes: held reports
// whether the lock was taken and release frees it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, held bool, err error) {
	lock, err := l.Acquire(ctx, name, ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lock.Release, true, nil
}
