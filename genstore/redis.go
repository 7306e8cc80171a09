package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of a go-redis client the version store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// DefaultPrefix is prepended to every version key.
const DefaultPrefix = "mcdb:ver:"

// RedisGenStore keeps versions as integer keys on the server that holds the
// data, so every client of that server agrees on them.
// With a TTL, an idle key's version expires and restarts at 0.
type RedisGenStore struct {
	rdb         RedisClient
	prefix      string
	ttl         time.Duration
	closeClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisConfig struct {
	Client RedisClient
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// TTL refreshes on every bump; 0 disables expiry.
	TTL time.Duration
	// CloseClient makes Close close Client. Leave false when the client is
	// shared with the data path.
	CloseClient bool
}

func NewRedisGenStore(cfg RedisConfig) *RedisGenStore {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &RedisGenStore{rdb: cfg.Client, prefix: cfg.Prefix, ttl: cfg.TTL, closeClient: cfg.CloseClient}
}

func (s *RedisGenStore) key(k string) string { return s.prefix + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, k string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseVersion(k, res)
}

// Bump runs INCR, pipelined with EXPIRE when a TTL is set.
func (s *RedisGenStore) Bump(ctx context.Context, k string) (uint64, error) {
	vk := s.key(k)
	if s.ttl <= 0 {
		n, err := s.rdb.Incr(ctx, vk).Result()
		if err != nil {
			return 0, err
		}
		return uint64(n), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, vk)
		p.Expire(ctx, vk, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *RedisGenStore) BumpMany(ctx context.Context, ks []string) error {
	if len(ks) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range ks {
			vk := s.key(k)
			p.Incr(ctx, vk)
			if s.ttl > 0 {
				p.Expire(ctx, vk, s.ttl)
			}
		}
		return nil
	})
	return err
}

func (s *RedisGenStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func parseVersion(k, raw string) (uint64, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: version of %q: %w", k, err)
	}
	return n, nil
}
