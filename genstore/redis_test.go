package genstore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Duration
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	return nil, fn(&fakeRedisPipe{f: f})
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

type fakeRedisPipe struct {
	redis.Pipeliner
	f *fakeRedis
}

func (p *fakeRedisPipe) Incr(ctx context.Context, key string) *redis.IntCmd {
	return p.f.Incr(ctx, key)
}

func (p *fakeRedisPipe) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	p.f.mu.Lock()
	p.f.expires[key] = ttl
	p.f.mu.Unlock()
	return redis.NewBoolResult(true, nil)
}

func TestRedisSnapshotAndBump(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	s := NewRedisGenStore(RedisConfig{Client: f})

	if g, err := s.Snapshot(ctx, "k"); err != nil || g != 0 {
		t.Fatalf("missing key: got %d, %v", g, err)
	}
	for want := uint64(1); want <= 3; want++ {
		got, err := s.Bump(ctx, "k")
		if err != nil || got != want {
			t.Fatalf("Bump: got %d, %v want %d", got, err, want)
		}
	}
	if _, ok := f.data[DefaultPrefix+"k"]; !ok {
		t.Fatalf("version not stored under %q: %v", DefaultPrefix, f.data)
	}

	if g, err := s.Snapshot(ctx, "k"); err != nil || g != 3 {
		t.Fatalf("Snapshot after bumps: got %d, %v", g, err)
	}
}

func TestRedisTTLAndBumpMany(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	s := NewRedisGenStore(RedisConfig{Client: f, Prefix: "v:", TTL: time.Minute})

	if _, err := s.Bump(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.BumpMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if f.data["v:a"] != "2" || f.data["v:b"] != "1" {
		t.Fatalf("unexpected versions %v", f.data)
	}
	if f.expires["v:a"] != time.Minute || f.expires["v:b"] != time.Minute {
		t.Fatalf("ttl not refreshed: %v", f.expires)
	}
	if err := s.BumpMany(ctx, nil); err != nil {
		t.Fatalf("empty BumpMany: %v", err)
	}
}

func TestRedisParseError(t *testing.T) {
	ctx := context.Background()
	f := newFakeRedis()
	f.data[DefaultPrefix+"k"] = "garbage"
	s := NewRedisGenStore(RedisConfig{Client: f})
	if _, err := s.Snapshot(ctx, "k"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedisCloseOwnership(t *testing.T) {
	ctx := context.Background()
	shared := newFakeRedis()
	if err := NewRedisGenStore(RedisConfig{Client: shared}).Close(ctx); err != nil || shared.closed {
		t.Fatalf("shared client must stay open (err=%v)", err)
	}
	owned := newFakeRedis()
	if err := NewRedisGenStore(RedisConfig{Client: owned, CloseClient: true}).Close(ctx); err != nil || !owned.closed {
		t.Fatalf("owned client must be closed (err=%v)", err)
	}
}
