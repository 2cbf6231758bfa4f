package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired means another request is already changing the session.
var ErrLockNotAcquired = errors.New("booking session is being changed by another request")

const flowLockPrefix = "booking:lock:"

// Locker serializes the mutations of one booking session across api-server
// replicas. Reads of a flow never take it.
type Locker interface {
	WithFlowLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error
}

// FlowLocker holds a session lock in Redis for at most ttl. Each holder
// writes its own token, so a request whose lock already expired cannot
// release the lock of the request that took over.
type FlowLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFlowLocker(client *redis.Client, ttl time.Duration) *FlowLocker {
	return &FlowLocker{client: client, ttl: ttl}
}

func lockKey(sessionID string) string {
	return flowLockPrefix + sessionID
}

// WithFlowLock runs fn while the session is locked. fn's context ends when
// the lock would expire, so a slow scheduler cannot stretch a mutation past
// its lock.
func (l *FlowLocker) WithFlowLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	held, err := l.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer held.release(context.WithoutCancel(ctx))

	lockedCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockedCtx)
}

type sessionLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *FlowLocker) acquire(ctx context.Context, sessionID string) (*sessionLock, error) {
	held := &sessionLock{client: l.client, key: lockKey(sessionID), token: uuid.NewString()}

	ok, err := l.client.SetNX(ctx, held.key, held.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock booking session %s: %w", sessionID, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return held, nil
}

// releaseIfOwner deletes the key only while it still holds our token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)

// release is best effort: an unreleased lock still expires with its TTL.
func (s *sessionLock) release(ctx context.Context) {
	_ = releaseIfOwner.Run(ctx, s.client, []string{s.key}, s.token).Err()
}

// NoopLocker runs fn directly. Used when only one replica serves flows.
type NoopLocker struct{}

func (NoopLocker) WithFlowLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
