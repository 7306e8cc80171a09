package bigcache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newConn(t *testing.T, cfg Config) (*Dialer, provider.Conn) {
	t.Helper()
	if cfg.Shards == 0 {
		cfg.Shards = 8
	}
	d := NewDialer(cfg)
	t.Cleanup(func() { _ = d.Close() })
	c, err := d.Dial(context.Background(), "127.0.0.1", DefaultPort, nil)
	require.NoError(t, err)
	return d, c
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{})

	_, res := c.Get(ctx, "k")
	assert.Equal(t, status.CodeNotFound, res.Code)

	require.True(t, c.Set(ctx, "k", []byte("v1"), 0).Ok())
	v, res := c.Get(ctx, "k")
	require.True(t, res.Ok())
	assert.Equal(t, []byte("v1"), v)

	assert.True(t, c.Delete(ctx, "k").Ok())
	assert.Equal(t, status.CodeNotFound, c.Delete(ctx, "k").Code)
}

func TestAddReplace(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{})

	assert.Equal(t, status.CodeNotStored, c.Replace(ctx, "k", []byte("x"), 0).Code)
	assert.True(t, c.Add(ctx, "k", []byte("a"), 0).Ok())
	assert.Equal(t, status.CodeNotStored, c.Add(ctx, "k", []byte("b"), 0).Code)
	assert.True(t, c.Replace(ctx, "k", []byte("c"), 0).Ok())

	v, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("c"), v)
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{})

	require.True(t, c.Set(ctx, "k", []byte("a"), 0).Ok())
	it, res := c.Gets(ctx, "k")
	require.True(t, res.Ok())

	require.True(t, c.Set(ctx, "k", []byte("b"), 0).Ok())
	assert.Equal(t, status.CodeDataExists, c.CompareAndSwap(ctx, it.Token, "k", []byte("stale"), 0).Code)

	fresh, _ := c.Gets(ctx, "k")
	assert.True(t, c.CompareAndSwap(ctx, fresh.Token, "k", []byte("c"), 0).Ok())
	v, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("c"), v)

	require.True(t, c.Delete(ctx, "k").Ok())
	assert.Equal(t, status.CodeNotFound, c.CompareAndSwap(ctx, fresh.Token, "k", []byte("d"), 0).Code)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	_, c := newConn(t, Config{Now: clk.Now})

	require.True(t, c.Set(ctx, "k", []byte("v"), 2*time.Second).Ok())
	require.True(t, c.Set(ctx, "forever", []byte("v"), 0).Ok())
	clk.Advance(time.Second)
	_, res := c.Get(ctx, "k")
	assert.True(t, res.Ok())

	clk.Advance(time.Second)
	_, res = c.Get(ctx, "k")
	assert.Equal(t, status.CodeNotFound, res.Code)
	assert.True(t, c.Add(ctx, "k", []byte("again"), 0).Ok(), "expired key must be addable")

	clk.Advance(365 * 24 * time.Hour)
	_, res = c.Get(ctx, "forever")
	assert.True(t, res.Ok())
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{})

	_, res := c.Increment(ctx, "n", 1)
	assert.Equal(t, status.CodeNotFound, res.Code)

	require.True(t, c.Add(ctx, "n", []byte("5"), 0).Ok())
	n, res := c.Increment(ctx, "n", 3)
	require.True(t, res.Ok())
	assert.EqualValues(t, 8, n)
	n, _ = c.Decrement(ctx, "n", 10)
	assert.EqualValues(t, -2, n)

	require.True(t, c.Set(ctx, "s", []byte("abc"), 0).Ok())
	_, res = c.Increment(ctx, "s", 1)
	assert.Equal(t, status.CodeClientError, res.Code)
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{})

	for _, k := range []string{"", "has space", "tab\t", strings.Repeat("k", MaxKeyLen+1)} {
		assert.Equal(t, status.CodeBadKey, c.Set(ctx, k, []byte("v"), 0).Code, "%q", k)
	}
	assert.True(t, c.Set(ctx, strings.Repeat("k", MaxKeyLen), []byte("v"), 0).Ok())
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{})

	results, res := c.SetMulti(ctx, map[string][]byte{
		"a":       []byte("1"),
		"b":       []byte("2"),
		"bad key": []byte("3"),
	}, 0)
	require.True(t, res.Ok())
	assert.True(t, results["a"].Ok())
	assert.True(t, results["b"].Ok())
	assert.Equal(t, status.CodeBadKey, results["bad key"].Code)

	got, res := c.GetMulti(ctx, []string{"a", "b", "missing"})
	require.True(t, res.Ok())
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, got)

	dels, res := c.DeleteMulti(ctx, []string{"a", "missing"})
	require.True(t, res.Ok())
	assert.True(t, dels["a"].Ok())
	assert.Equal(t, status.CodeNotFound, dels["missing"].Code)
}

func TestSharedStorePerAddress(t *testing.T) {
	ctx := context.Background()
	d, c1 := newConn(t, Config{})
	c2, err := d.Dial(ctx, "127.0.0.1", DefaultPort, nil)
	require.NoError(t, err)
	other, err := d.Dial(ctx, "127.0.0.2", DefaultPort, nil)
	require.NoError(t, err)

	require.True(t, c1.Set(ctx, "k", []byte("v"), 0).Ok())
	_, res := c2.Get(ctx, "k")
	assert.True(t, res.Ok(), "same address must share the store")
	_, res = other.Get(ctx, "k")
	assert.Equal(t, status.CodeNotFound, res.Code)

	require.True(t, c1.Flush(ctx).Ok())
	_, res = c2.Get(ctx, "k")
	assert.Equal(t, status.CodeNotFound, res.Code)
}

func TestStatsAndClose(t *testing.T) {
	ctx := context.Background()
	_, c := newConn(t, Config{HardMaxCacheSizeMB: 4})

	st, res := c.Stats(ctx)
	require.True(t, res.Ok())
	assert.EqualValues(t, 4*1024*1024, st.LimitMaxBytes)
	assert.Equal(t, "127.0.0.1:11211", st.Server)
	assert.Equal(t, st.Raw["limit_maxbytes"], "4194304")

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, status.CodeConnectionFailure, c.Set(ctx, "k", []byte("v"), 0).Code)
}
