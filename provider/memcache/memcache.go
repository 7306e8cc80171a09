// Package memcache is the memcached backend for mcdb, built on
// bradfitz/gomemcache. Each Conn talks to exactly one server; server
// selection happens in the adapter.
package memcache

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/sourcegraph/conc/pool"

	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
)

const (
	DefaultPort = 11211

	defaultConnectTimeout = time.Second
	defaultFanout         = 8

	// memcached reads expirations above 30 days as absolute unix times.
	maxRelativeTTL = 30 * 24 * time.Hour
)

// Client is the subset of *memcache.Client used by Conn.
type Client interface {
	Get(key string) (*memcache.Item, error)
	GetMulti(keys []string) (map[string]*memcache.Item, error)
	Set(item *memcache.Item) error
	Add(item *memcache.Item) error
	Replace(item *memcache.Item) error
	CompareAndSwap(item *memcache.Item) error
	Delete(key string) error
	Increment(key string, delta uint64) (uint64, error)
	Decrement(key string, delta uint64) (uint64, error)
	FlushAll() error
	Ping() error
	Close() error
}

var _ Client = (*memcache.Client)(nil)

type Config struct {
	// DialContext opens sockets (e.g. TLS). Defaults to net.Dialer.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)
	// SkipPing disables the version round-trip on Dial.
	SkipPing bool
	// Fanout bounds concurrent requests in SetMulti/DeleteMulti.
	Fanout int
}

type Dialer struct {
	cfg Config
	now func() time.Time
	// newClient is swapped in tests.
	newClient func(addr string, timeout time.Duration, maxIdle int, dial dialFunc) Client
}

var _ provider.Dialer = (*Dialer)(nil)

func NewDialer(cfg Config) *Dialer {
	if cfg.DialContext == nil {
		cfg.DialContext = (&net.Dialer{}).DialContext
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = defaultFanout
	}
	return &Dialer{cfg: cfg, now: time.Now, newClient: newGomemcache}
}

func newGomemcache(addr string, timeout time.Duration, maxIdle int, dial dialFunc) Client {
	c := memcache.New(addr)
	c.Timeout = timeout
	c.MaxIdleConns = maxIdle
	c.DialContext = dial
	return c
}

func (d *Dialer) Name() string     { return "memcache" }
func (d *Dialer) DefaultPort() int { return DefaultPort }

// Dial builds a client for host:port. Socket timeouts come from POLL_TIMEOUT,
// falling back to RECV_TIMEOUT; the idle pool size from MAX_IDLE_CONNS or
// POOL_SIZE.
func (d *Dialer) Dial(ctx context.Context, host string, port int, opts provider.LibOptions) (provider.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	timeout := opts.Duration(provider.OptPollTimeout, opts.Duration(provider.OptRecvTimeout, memcache.DefaultTimeout))
	maxIdle := opts.Int(provider.OptMaxIdleConns, opts.Int(provider.OptPoolSize, 0))

	client := d.newClient(addr, timeout, maxIdle, d.cfg.DialContext)
	if !d.cfg.SkipPing {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := client.Ping(); err != nil {
			_ = client.Close()
			return nil, resultOf(err).Err("connect " + addr)
		}
	}
	return &Conn{
		client:         client,
		addr:           addr,
		dial:           d.cfg.DialContext,
		connectTimeout: opts.Duration(provider.OptConnectTimeout, defaultConnectTimeout),
		fanout:         d.cfg.Fanout,
		now:            d.now,
	}, nil
}

type Conn struct {
	client         Client
	addr           string
	dial           dialFunc
	connectTimeout time.Duration
	fanout         int
	now            func() time.Time
}

var _ provider.Conn = (*Conn)(nil)

func (c *Conn) expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeTTL {
		return int32(c.now().Add(ttl).Unix())
	}
	return int32(ttl / time.Second)
}

func (c *Conn) item(key string, value []byte, ttl time.Duration) *memcache.Item {
	return &memcache.Item{Key: key, Value: value, Expiration: c.expiration(ttl)}
}

func (c *Conn) Get(_ context.Context, key string) ([]byte, status.Result) {
	it, err := c.client.Get(key)
	if err != nil {
		return nil, resultOf(err)
	}
	return it.Value, status.OK
}

func (c *Conn) Gets(_ context.Context, key string) (provider.Item, status.Result) {
	it, err := c.client.Get(key)
	if err != nil {
		return provider.Item{}, resultOf(err)
	}
	return provider.Item{
		Key:   key,
		Value: it.Value,
		Token: provider.Token{Version: it.CasID, Handle: it},
	}, status.OK
}

func (c *Conn) GetMulti(_ context.Context, keys []string) (map[string][]byte, status.Result) {
	items, err := c.client.GetMulti(keys)
	if err != nil {
		return nil, resultOf(err)
	}
	out := make(map[string][]byte, len(items))
	for k, it := range items {
		out[k] = it.Value
	}
	return out, status.OK
}

func (c *Conn) Set(_ context.Context, key string, value []byte, ttl time.Duration) status.Result {
	return resultOf(c.client.Set(c.item(key, value, ttl)))
}

func (c *Conn) Add(_ context.Context, key string, value []byte, ttl time.Duration) status.Result {
	return resultOf(c.client.Add(c.item(key, value, ttl)))
}

func (c *Conn) Replace(_ context.Context, key string, value []byte, ttl time.Duration) status.Result {
	return resultOf(c.client.Replace(c.item(key, value, ttl)))
}

func (c *Conn) CompareAndSwap(_ context.Context, token provider.Token, key string, value []byte, ttl time.Duration) status.Result {
	it := c.item(key, value, ttl)
	it.CasID = token.Version
	if prev, ok := token.Handle.(*memcache.Item); ok {
		it.Flags = prev.Flags
	}
	return resultOf(c.client.CompareAndSwap(it))
}

func (c *Conn) Delete(_ context.Context, key string) status.Result {
	return resultOf(c.client.Delete(key))
}

// SetMulti fans the writes out over the client's connection pool; the text
// protocol has no multi-key store command.
func (c *Conn) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) (map[string]status.Result, status.Result) {
	out := make(map[string]status.Result, len(items))
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(c.fanout)
	for k, v := range items {
		k, v := k, v
		p.Go(func() {
			res := c.Set(ctx, k, v, ttl)
			mu.Lock()
			out[k] = res
			mu.Unlock()
		})
	}
	p.Wait()
	return out, status.OK
}

func (c *Conn) DeleteMulti(ctx context.Context, keys []string) (map[string]status.Result, status.Result) {
	out := make(map[string]status.Result, len(keys))
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(c.fanout)
	for _, k := range keys {
		k := k
		p.Go(func() {
			res := c.Delete(ctx, k)
			mu.Lock()
			out[k] = res
			mu.Unlock()
		})
	}
	p.Wait()
	return out, status.OK
}

func (c *Conn) Increment(_ context.Context, key string, delta int64) (int64, status.Result) {
	if delta < 0 {
		return c.decr(key, uint64(-delta))
	}
	return c.incr(key, uint64(delta))
}

func (c *Conn) Decrement(_ context.Context, key string, delta int64) (int64, status.Result) {
	if delta < 0 {
		return c.incr(key, uint64(-delta))
	}
	return c.decr(key, uint64(delta))
}

func (c *Conn) incr(key string, delta uint64) (int64, status.Result) {
	n, err := c.client.Increment(key, delta)
	if err != nil {
		return 0, resultOf(err)
	}
	return int64(n), status.OK
}

func (c *Conn) decr(key string, delta uint64) (int64, status.Result) {
	n, err := c.client.Decrement(key, delta)
	if err != nil {
		return 0, resultOf(err)
	}
	return int64(n), status.OK
}

func (c *Conn) Flush(context.Context) status.Result {
	return resultOf(c.client.FlushAll())
}

func (c *Conn) Stats(ctx context.Context) (provider.Stats, status.Result) {
	raw, err := readStats(ctx, c.dial, c.addr, c.connectTimeout)
	if err != nil {
		return provider.Stats{}, resultOf(err)
	}
	limit, err := statUint(raw, "limit_maxbytes")
	if err != nil {
		return provider.Stats{}, status.Failed(status.CodeProtocolError, err.Error())
	}
	used, err := statUint(raw, "bytes")
	if err != nil {
		return provider.Stats{}, status.Failed(status.CodeProtocolError, err.Error())
	}
	return provider.Stats{Server: c.addr, LimitMaxBytes: limit, Bytes: used, Raw: raw}, status.OK
}

func (c *Conn) Close(context.Context) error {
	return c.client.Close()
}
