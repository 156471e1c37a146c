package store

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// redisStore is the production Store, backed by Redis. Construction
// follows the teacher's redis_bus.go shape: parse an address, dial with a
// bounded timeout, ping once to fail fast on misconfiguration.
type redisStore struct {
	rdb *goredis.Client
}

// NewRedis dials addr and returns a Store, failing fast if Redis is
// unreachable.
func NewRedis(addr string) (Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("store: missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &redisStore{rdb: rdb}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, val string) error {
	return s.rdb.Set(ctx, key, val, 0).Err()
}

func (s *redisStore) SetXX(ctx context.Context, key, val string) (bool, error) {
	return s.rdb.SetXX(ctx, key, val, 0).Result()
}

func (s *redisStore) SetNX(ctx context.Context, key, val string) (bool, error) {
	return s.rdb.SetNX(ctx, key, val, 0).Result()
}

func (s *redisStore) MSet(ctx context.Context, kvs map[string]string) error {
	if len(kvs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(kvs)*2)
	for k, v := range kvs {
		args = append(args, k, v)
	}
	return s.rdb.MSet(ctx, args...).Err()
}

func (s *redisStore) MGet(ctx context.Context, keys []string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = &s
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	return int(n), err
}

func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (s *redisStore) RPush(ctx context.Context, key string, vals ...string) error {
	args := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return s.rdb.RPush(ctx, key, args...).Err()
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, key, start, stop).Result()
}

func (s *redisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return s.rdb.LTrim(ctx, key, start, stop).Err()
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
