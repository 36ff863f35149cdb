package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

// unlockScript deletes the key only while it still holds our token.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// extendScript resets the expiry only while the key still holds our token.
const extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`

// redisAPI is the subset of *redis.Client used by Redis.
type redisAPI interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis is a distributed per-order lock for deployments with several workers.
type Redis struct {
	api    redisAPI
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

type RedisOption func(*Redis)

// WithTTL bounds how long a crashed holder can keep the lock. A live holder
// renews the key every ttl/3, so a turn may outlast the TTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

func NewRedis(api redisAPI, prefix string, opts ...RedisOption) (*Redis, error) {
	if api == nil {
		return nil, errors.New("lock: redis client must not be nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "order-agent:turn:"
	}
	r := &Redis{api: api, prefix: prefix, ttl: defaultTTL, retry: defaultRetry}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Lock polls SETNX until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.api.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %q: %w", k, err)
		}
		if ok {
			stop := r.keepAlive(k, token)
			var once sync.Once
			return func() {
				once.Do(func() {
					stop()
					// The turn context may already be cancelled here.
					releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = r.api.Eval(releaseCtx, unlockScript, []string{k}, token).Err()
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: acquire %q: %w", k, ctx.Err())
		case <-ticker.C:
		}
	}
}

// keepAlive extends the key until the returned stop func is called or the
// token no longer owns it.
func (r *Redis) keepAlive(key, token string) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(r.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
				n, err := r.api.Eval(ctx, extendScript, []string{key}, token, r.ttl.Milliseconds()).Int64()
				cancel()
				if err == nil && n == 0 {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
