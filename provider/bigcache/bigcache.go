// Package bigcache is an in-process backend for mcdb built on allegro/bigcache.
//
// Every host:port dialed through the same Dialer resolves to one shared store,
// so a topology of in-process "servers" behaves like a small cluster living in
// memory. It is meant for tests, local development and embedding; entries
// follow memcached semantics (per-entry TTL, CAS versions, numeric counters).
package bigcache

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/mcdb/internal/wire"
	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
)

const (
	DefaultPort = 11211
	// MaxKeyLen matches the memcached text protocol limit.
	MaxKeyLen = 250
)

// lifeWindow disables bigcache's own eviction clock; expiry is tracked per
// entry in the wire header.
const lifeWindow = 100 * 365 * 24 * time.Hour

const (
	defaultShards             = 64
	defaultMaxEntriesInWindow = 10_000
	defaultMaxEntrySize       = 256
)

type Config struct {
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// Dialer hands out connections to in-process stores keyed by address.
type Dialer struct {
	cfg Config

	mu     sync.Mutex
	stores map[string]*store
}

var _ provider.Dialer = (*Dialer)(nil)

func NewDialer(cfg Config) *Dialer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dialer{cfg: cfg, stores: make(map[string]*store)}
}

func (d *Dialer) Name() string     { return "bigcache" }
func (d *Dialer) DefaultPort() int { return DefaultPort }

// Dial returns a connection to the store at host:port, creating it on first use.
func (d *Dialer) Dial(ctx context.Context, host string, port int, _ provider.LibOptions) (provider.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.stores[addr]
	if !ok {
		var err error
		if s, err = newStore(d.cfg); err != nil {
			return nil, err
		}
		d.stores[addr] = s
	}
	return &Conn{s: s, addr: addr}, nil
}

// Close releases every store created by the dialer.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for addr, s := range d.stores {
		errs = append(errs, s.c.Close())
		delete(d.stores, addr)
	}
	return errors.Join(errs...)
}

type store struct {
	mu      sync.Mutex
	c       *bc.BigCache
	seq     uint64
	limitMB int
	now     func() time.Time
}

func newStore(cfg Config) (*store, error) {
	conf := bc.DefaultConfig(lifeWindow)
	conf.CleanWindow = 0
	conf.Verbose = false
	conf.StatsEnabled = true
	conf.Shards = coalesce(cfg.Shards, defaultShards)
	conf.MaxEntriesInWindow = coalesce(cfg.MaxEntriesInWindow, defaultMaxEntriesInWindow)
	conf.MaxEntrySize = coalesce(cfg.MaxEntrySize, defaultMaxEntrySize)
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &store{c: c, limitMB: cfg.HardMaxCacheSizeMB, now: cfg.Now}, nil
}

func coalesce(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Conn is one client view of a shared store. Store-level operations are
// serialized so add, replace, cas and counters are atomic.
type Conn struct {
	s      *store
	addr   string
	closed atomic.Bool
}

var _ provider.Conn = (*Conn)(nil)

func validKey(key string) bool {
	if key == "" || len(key) > MaxKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

var (
	badKey = status.Failed(status.CodeBadKey, "key is empty, too long or contains whitespace/control characters")
	closed = status.Failed(status.CodeConnectionFailure, "connection closed")
)

func (c *Conn) precheck(key string) status.Result {
	if c.closed.Load() {
		return closed
	}
	if !validKey(key) {
		return badKey
	}
	return status.OK
}

// load returns the live entry for key. Caller holds s.mu.
func (s *store) load(key string) (wire.Entry, bool, status.Result) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return wire.Entry{}, false, status.OK
	}
	if err != nil {
		return wire.Entry{}, false, status.Failed(status.CodeServerError, err.Error())
	}
	e, err := wire.Decode(b)
	if err != nil {
		_ = s.c.Delete(key)
		return wire.Entry{}, false, status.Failed(status.CodeProtocolError, err.Error())
	}
	if e.Expired(s.now().UnixNano()) {
		_ = s.c.Delete(key)
		return wire.Entry{}, false, status.OK
	}
	return e, true, status.OK
}

// store writes value under a fresh version. Caller holds s.mu.
func (s *store) store(key string, value []byte, ttl time.Duration) status.Result {
	s.seq++
	e := wire.Entry{Version: s.seq, Payload: value}
	if ttl > 0 {
		e.ExpiresAt = s.now().Add(ttl).UnixNano()
	}
	if err := s.c.Set(key, wire.Encode(e)); err != nil {
		return status.Failed(status.CodeServerError, "object too large for cache: "+err.Error())
	}
	return status.OK
}

func (c *Conn) Get(ctx context.Context, key string) ([]byte, status.Result) {
	it, res := c.Gets(ctx, key)
	return it.Value, res
}

func (c *Conn) Gets(_ context.Context, key string) (provider.Item, status.Result) {
	if res := c.precheck(key); !res.Ok() {
		return provider.Item{}, res
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	e, ok, res := c.s.load(key)
	if !res.Ok() {
		return provider.Item{}, res
	}
	if !ok {
		return provider.Item{}, status.Failed(status.CodeNotFound, "")
	}
	val := append([]byte(nil), e.Payload...)
	return provider.Item{Key: key, Value: val, Token: provider.Token{Version: e.Version}}, status.OK
}

func (c *Conn) GetMulti(_ context.Context, keys []string) (map[string][]byte, status.Result) {
	if c.closed.Load() {
		return nil, closed
	}
	out := make(map[string][]byte, len(keys))
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, k := range keys {
		if !validKey(k) {
			return nil, badKey
		}
		e, ok, res := c.s.load(k)
		if !res.Ok() {
			return nil, res
		}
		if ok {
			out[k] = append([]byte(nil), e.Payload...)
		}
	}
	return out, status.OK
}

func (c *Conn) Set(_ context.Context, key string, value []byte, ttl time.Duration) status.Result {
	if res := c.precheck(key); !res.Ok() {
		return res
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.store(key, value, ttl)
}

func (c *Conn) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) (map[string]status.Result, status.Result) {
	if c.closed.Load() {
		return nil, closed
	}
	out := make(map[string]status.Result, len(items))
	for k, v := range items {
		out[k] = c.Set(ctx, k, v, ttl)
	}
	return out, status.OK
}

func (c *Conn) Add(_ context.Context, key string, value []byte, ttl time.Duration) status.Result {
	return c.conditional(key, value, ttl, false)
}

func (c *Conn) Replace(_ context.Context, key string, value []byte, ttl time.Duration) status.Result {
	return c.conditional(key, value, ttl, true)
}

func (c *Conn) conditional(key string, value []byte, ttl time.Duration, mustExist bool) status.Result {
	if res := c.precheck(key); !res.Ok() {
		return res
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	_, ok, res := c.s.load(key)
	if !res.Ok() {
		return res
	}
	if ok != mustExist {
		return status.Failed(status.CodeNotStored, "")
	}
	return c.s.store(key, value, ttl)
}

func (c *Conn) CompareAndSwap(_ context.Context, token provider.Token, key string, value []byte, ttl time.Duration) status.Result {
	if res := c.precheck(key); !res.Ok() {
		return res
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	e, ok, res := c.s.load(key)
	if !res.Ok() {
		return res
	}
	if !ok {
		return status.Failed(status.CodeNotFound, "")
	}
	if e.Version != token.Version {
		return status.Failed(status.CodeDataExists, "")
	}
	return c.s.store(key, value, ttl)
}

func (c *Conn) Delete(_ context.Context, key string) status.Result {
	if res := c.precheck(key); !res.Ok() {
		return res
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	_, ok, res := c.s.load(key)
	if !res.Ok() {
		return res
	}
	if !ok {
		return status.Failed(status.CodeNotFound, "")
	}
	if err := c.s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return status.Failed(status.CodeServerError, err.Error())
	}
	return status.OK
}

func (c *Conn) DeleteMulti(ctx context.Context, keys []string) (map[string]status.Result, status.Result) {
	if c.closed.Load() {
		return nil, closed
	}
	out := make(map[string]status.Result, len(keys))
	for _, k := range keys {
		out[k] = c.Delete(ctx, k)
	}
	return out, status.OK
}

func (c *Conn) Increment(_ context.Context, key string, delta int64) (int64, status.Result) {
	return c.add(key, delta)
}

func (c *Conn) Decrement(_ context.Context, key string, delta int64) (int64, status.Result) {
	return c.add(key, -delta)
}

func (c *Conn) add(key string, delta int64) (int64, status.Result) {
	if res := c.precheck(key); !res.Ok() {
		return 0, res
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	e, ok, res := c.s.load(key)
	if !res.Ok() {
		return 0, res
	}
	if !ok {
		return 0, status.Failed(status.CodeNotFound, "")
	}
	n, err := strconv.ParseInt(string(e.Payload), 10, 64)
	if err != nil {
		return 0, status.Failed(status.CodeClientError, "cannot increment or decrement non-numeric value")
	}
	n += delta

	// counters keep their deadline
	c.s.seq++
	e = wire.Entry{Version: c.s.seq, ExpiresAt: e.ExpiresAt, Payload: strconv.AppendInt(nil, n, 10)}
	if err := c.s.c.Set(key, wire.Encode(e)); err != nil {
		return 0, status.Failed(status.CodeServerError, err.Error())
	}
	return n, status.OK
}

func (c *Conn) Flush(context.Context) status.Result {
	if c.closed.Load() {
		return closed
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.c.Reset(); err != nil {
		return status.Failed(status.CodeServerError, err.Error())
	}
	return status.OK
}

func (c *Conn) Stats(context.Context) (provider.Stats, status.Result) {
	if c.closed.Load() {
		return provider.Stats{}, closed
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	st := c.s.c.Stats()
	out := provider.Stats{
		Server:        c.addr,
		LimitMaxBytes: uint64(c.s.limitMB) * 1024 * 1024,
		Bytes:         uint64(c.s.c.Capacity()),
		Raw: map[string]string{
			"curr_items":  strconv.Itoa(c.s.c.Len()),
			"get_hits":    strconv.FormatInt(st.Hits, 10),
			"get_misses":  strconv.FormatInt(st.Misses, 10),
			"delete_hits": strconv.FormatInt(st.DelHits, 10),
			"collisions":  strconv.FormatInt(st.Collisions, 10),
		},
	}
	out.Raw["limit_maxbytes"] = strconv.FormatUint(out.LimitMaxBytes, 10)
	out.Raw["bytes"] = strconv.FormatUint(out.Bytes, 10)
	return out, status.OK
}

// Close detaches this connection. The store outlives it.
func (c *Conn) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}
