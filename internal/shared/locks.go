package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CommitLockKey builds the redis key for the single commit critical section.
// Every multi-row commit (ingestion batch, allocation finalize, rule
// persistence) serialises on this one name because the tabular store has no
// row-level locking of its own.
func CommitLockKey() string {
	return "conciliador:commit:lock"
}

// DefaultLockWait bounds how long a writer blocks on the commit lock before
// failing loudly instead of corrupting a concurrent commit.
const DefaultLockWait = 30 * time.Second

const lockPollInterval = 100 * time.Millisecond

var _ Locker = (*Mutex)(nil)

// CommitLocker returns a factory producing fresh commit-lock instances. Each
// commit acquires its own instance so owner tokens never collide.
func CommitLocker(client *redis.Client) func() Locker {
	return func() Locker {
		return NewMutex(client, CommitLockKey(), 2*time.Minute, DefaultLockWait)
	}
}

// Locker is the commit critical section as services see it. Acquire blocks
// up to the bounded wait; Release is safe to defer unconditionally.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Mutex is a redis-backed advisory lock with a bounded acquire wait. The
// owner token guards against releasing a lock that expired and was taken by
// another process.
type Mutex struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	wait   time.Duration
	token  string
}

// NewMutex constructs a Mutex for the given key. The TTL is a safety net for
// crashed holders; normal release happens via Release.
func NewMutex(client *redis.Client, key string, ttl, wait time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &Mutex{client: client, key: key, ttl: ttl, wait: wait}
}

// Acquire polls SET NX until the lock is held or the bounded wait elapses.
// On timeout it returns ErrLockTimeout and the caller must retry the whole
// operation; nothing has been written.
func (m *Mutex) Acquire(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("mutex not initialised")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(m.wait)
	for {
		ok, err := m.client.SetNX(ctx, m.key, token, m.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			m.token = token
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release frees the lock if this instance still owns it. Safe to call from a
// defer even when Acquire failed.
func (m *Mutex) Release(ctx context.Context) error {
	if m == nil || m.client == nil || m.token == "" {
		return nil
	}
	token := m.token
	m.token = ""
	return releaseScript.Run(ctx, m.client, []string{m.key}, token).Err()
}
