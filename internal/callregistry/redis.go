package callregistry

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compare-and-delete / compare-and-expire run server-side so the token check
// and the write are one atomic step.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return -1`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return -1`)
)

type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client, prefix: "call:"}
}

func (s *redisStore) Put(ctx context.Context, key, token string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.prefix+key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrCallExists
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	token, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCallNotFound
		}
		return "", err
	}
	return token, nil
}

func (s *redisStore) Release(ctx context.Context, key, token string) error {
	result, err := releaseScript.Run(ctx, s.client, []string{s.prefix + key}, token).Int64()
	if err != nil {
		return err
	}
	switch result {
	case -1:
		current, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if current != token {
			return ErrTokenMismatch
		}
		return ErrCallNotFound
	case 0:
		return ErrCallNotFound
	default:
		return nil
	}
}

func (s *redisStore) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, s.client, []string{s.prefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == -1 {
		if _, err := s.Get(ctx, key); err != nil {
			return err
		}
		return ErrTokenMismatch
	}
	if result == 0 {
		return ErrCallNotFound
	}
	return nil
}
