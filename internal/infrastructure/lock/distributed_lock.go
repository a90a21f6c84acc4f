package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrLockFailed = errors.New("could not acquire lock")

// Provider hands out mutual exclusion on a string key. The returned release
// function must be called exactly once.
type Provider interface {
	Acquire(ctx context.Context, key, owner string) (release func(), err error)
}

// unlockScript deletes the key only if it still carries the caller's owner
// token, so a holder whose lease expired cannot release somebody else's lock.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock is a SET NX EX lease in Redis.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes a single non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// RedisProvider backs Provider with DistributedLock.
type RedisProvider struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{
		client:        client,
		expiration:    30 * time.Second,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    30,
	}
}

func (p *RedisProvider) Acquire(ctx context.Context, key, owner string) (func(), error) {
	l := NewDistributedLock(p.client, key, owner, p.expiration)
	if err := l.Lock(ctx, p.retryInterval, p.maxRetries); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		// the request context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(ctx)
	}, nil
}

// LocalProvider is an in-process Provider for single-instance runs and tests.
type LocalProvider struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{locks: make(map[string]chan struct{})}
}

func (p *LocalProvider) slot(key string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		p.locks[key] = ch
	}
	return ch
}

func (p *LocalProvider) Acquire(ctx context.Context, key, owner string) (func(), error) {
	ch := p.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

// DepositKey is the per-user key serialising deposit initiation.
func DepositKey(userID string) string {
	return "wallet:lock:deposit:" + userID
}
