package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "codeforge:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 按 key 互斥，返回的 release 可重复调用
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker 基于 SET NX 的咨询锁，TTL 到期自动释放
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		poll:   250 * time.Millisecond,
	}
}

// Acquire 阻塞直到拿到锁或 ctx 结束
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// 持有者的 ctx 可能已取消，释放用独立 ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token)
	}, nil
}

// NopLocker 未配置 Redis 时使用
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}
