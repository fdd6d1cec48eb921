package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL   = 30 * time.Second
	minRedisRetry     = 20 * time.Millisecond
	maxRedisRetry     = 250 * time.Millisecond
	defaultRedisLocks = "locks:"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore takes locks with SET NX PX and a random owner token. Release
// only deletes the key when the token still matches.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisLocks
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) TryAcquire(ctx context.Context, key string, wait time.Duration) (Handle, error) {
	fullKey := s.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	retry := minRedisRetry

	for {
		ok, err := s.client.SetNX(ctx, fullKey, token, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire redis lock %s: %w", key, err)
		}
		if ok {
			return &redisHandle{client: s.client, key: fullKey, token: token}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		sleep := min(retry, remaining)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		retry = min(retry*2, maxRedisRetry)
	}
}

type redisHandle struct {
	client redis.UniversalClient
	key    string
	token  string
	once   sync.Once
	err    error
}

func (h *redisHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		deleted, err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Int()
		if err != nil {
			h.err = fmt.Errorf("release redis lock %s: %w", h.key, err)
			return
		}
		if deleted == 0 {
			h.err = ErrNotHeld
		}
	})
	return h.err
}
