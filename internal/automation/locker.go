package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const lockKeyPrefix = "leadflow:lock:"

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker serializes work on a key across workers. TryLock returns
// ErrLockNotAcquired when someone else holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// LeadLockKey is the lock key for one lead.
func LeadLockKey(orgID, leadID string) string {
	return "lead:" + orgID + ":" + leadID
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a token lock built on SET NX with a compare-and-delete
// release.
type RedisLocker struct {
	client *redis.Client
	tracer trace.Tracer
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		panic("automation: redis client cannot be nil")
	}
	return &RedisLocker{
		client: client,
		tracer: otel.Tracer("leadflow.internal.automation.locker"),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	ctx, span := l.tracer.Start(ctx, "automation.lock.acquire")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.lock_key", key))

	token := uuid.NewString()
	redisKey := lockKeyPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("automation: acquire lock: %w", err)
	}
	if !ok {
		span.SetAttributes(attribute.Bool("leadflow.lock_acquired", false))
		return nil, ErrLockNotAcquired
	}
	span.SetAttributes(attribute.Bool("leadflow.lock_acquired", true))

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("automation: release lock: %w", err)
		}
		return nil
	}, nil
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

type localLock struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), clock: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return nil, ErrLockNotAcquired
	}
	token := uuid.NewString()
	l.held[key] = localLock{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
