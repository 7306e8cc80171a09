// Package ssdb is the SSDB backend for mcdb. SSDB speaks the redis wire
// protocol, so connections are go-redis clients limited to the commands SSDB
// implements. CAS tokens come from a genstore: every write bumps the key's
// version and a compare-and-set must win the next bump to land.
package ssdb

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/mcdb/genstore"
	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
)

const DefaultPort = 8888

// Client is the subset of *redis.Client used by Conn.
type Client interface {
	genstore.RedisClient
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	SetXX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd
	FlushDB(ctx context.Context) *redis.StatusCmd
	Info(ctx context.Context, sections ...string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

var _ Client = (*redis.Client)(nil)

type Config struct {
	// Versions builds the CAS version store of a connection. Defaults to
	// version keys on the same server, expiring after VERSION_TTL.
	Versions func(c Client, opts provider.LibOptions) genstore.GenStore
	// Dialer opens sockets. Defaults to go-redis' dialer.
	Dialer func(ctx context.Context, network, addr string) (net.Conn, error)
	// SkipPing disables the PING round-trip on Dial.
	SkipPing bool
}

type Dialer struct {
	cfg       Config
	newClient func(*redis.Options) Client
}

var _ provider.Dialer = (*Dialer)(nil)

func NewDialer(cfg Config) *Dialer {
	if cfg.Versions == nil {
		cfg.Versions = serverVersions
	}
	return &Dialer{cfg: cfg, newClient: func(o *redis.Options) Client { return redis.NewClient(o) }}
}

func serverVersions(c Client, opts provider.LibOptions) genstore.GenStore {
	return genstore.NewRedisGenStore(genstore.RedisConfig{
		Client: c,
		TTL:    opts.Duration(provider.OptVersionTTL, 0),
	})
}

func (d *Dialer) Name() string     { return "ssdb" }
func (d *Dialer) DefaultPort() int { return DefaultPort }

// Options maps lib options onto go-redis options. Retries are off unless
// MAX_RETRIES is positive.
func Options(addr string, opts provider.LibOptions) *redis.Options {
	retries := opts.Int(provider.OptMaxRetries, -1)
	if retries <= 0 {
		retries = -1
	}
	return &redis.Options{
		Addr:             addr,
		Protocol:         2,
		DisableIndentity: true,
		Password:         opts.String(provider.OptPassword, ""),
		DB:               opts.Int(provider.OptDB, 0),
		MaxRetries:       retries,
		DialTimeout:      opts.Duration(provider.OptConnectTimeout, 0),
		ReadTimeout:      opts.Duration(provider.OptRecvTimeout, 0),
		WriteTimeout:     opts.Duration(provider.OptSendTimeout, 0),
		PoolSize:         opts.Int(provider.OptPoolSize, 0),
		MinIdleConns:     opts.Int(provider.OptMinIdleConns, 0),
		MaxIdleConns:     opts.Int(provider.OptMaxIdleConns, 0),
	}
}

func (d *Dialer) Dial(ctx context.Context, host string, port int, opts provider.LibOptions) (provider.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ro := Options(addr, opts)
	ro.Dialer = d.cfg.Dialer

	client := d.newClient(ro)
	if !d.cfg.SkipPing {
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, resultOf(err).Err("connect " + addr)
		}
	}
	return &Conn{client: client, gens: d.cfg.Versions(client, opts), addr: addr}, nil
}

type Conn struct {
	client Client
	gens   genstore.GenStore
	addr   string
}

var _ provider.Conn = (*Conn)(nil)

// written bumps key's version after a successful write. A failed bump is
// reported since outstanding tokens would stay valid.
func (c *Conn) written(ctx context.Context, key string) status.Result {
	if _, err := c.gens.Bump(ctx, key); err != nil {
		return resultOf(err)
	}
	return status.OK
}

func (c *Conn) Get(ctx context.Context, key string) ([]byte, status.Result) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, resultOf(err)
	}
	return b, status.OK
}

// Gets reads the version before the value, so a concurrent write can only
// make the token stale, never ahead of the value.
func (c *Conn) Gets(ctx context.Context, key string) (provider.Item, status.Result) {
	ver, err := c.gens.Snapshot(ctx, key)
	if err != nil {
		return provider.Item{}, resultOf(err)
	}
	b, res := c.Get(ctx, key)
	if !res.Ok() {
		return provider.Item{}, res
	}
	return provider.Item{Key: key, Value: b, Token: provider.Token{Version: ver}}, status.OK
}

func (c *Conn) GetMulti(ctx context.Context, keys []string) (map[string][]byte, status.Result) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, status.OK
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, resultOf(err)
	}
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[keys[i]] = []byte(vv)
		case []byte:
			out[keys[i]] = vv
		default:
			return nil, status.Failed(status.CodeProtocolError, "unexpected MGET element type")
		}
	}
	return out, status.OK
}

func (c *Conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) status.Result {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return resultOf(err)
	}
	return c.written(ctx, key)
}

func (c *Conn) Add(ctx context.Context, key string, value []byte, ttl time.Duration) status.Result {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return resultOf(err)
	}
	if !ok {
		return status.Failed(status.CodeNotStored, "")
	}
	return c.written(ctx, key)
}

// Replace is SET XX: it never creates a key.
func (c *Conn) Replace(ctx context.Context, key string, value []byte, ttl time.Duration) status.Result {
	ok, err := c.client.SetXX(ctx, key, value, ttl).Result()
	if err != nil {
		return resultOf(err)
	}
	if !ok {
		return status.Failed(status.CodeNotStored, "")
	}
	return c.written(ctx, key)
}

// CompareAndSwap rejects a stale token without touching the version. A
// current token then claims the next version: only the caller whose bump
// lands exactly on token+1 may write.
func (c *Conn) CompareAndSwap(ctx context.Context, token provider.Token, key string, value []byte, ttl time.Duration) status.Result {
	cur, err := c.gens.Snapshot(ctx, key)
	if err != nil {
		return resultOf(err)
	}
	if cur != token.Version {
		return status.Failed(status.CodeDataExists, "")
	}
	ver, err := c.gens.Bump(ctx, key)
	if err != nil {
		return resultOf(err)
	}
	if ver != token.Version+1 {
		return status.Failed(status.CodeDataExists, "")
	}
	ok, err := c.client.SetXX(ctx, key, value, ttl).Result()
	if err != nil {
		return resultOf(err)
	}
	if !ok {
		return status.Failed(status.CodeNotFound, "")
	}
	return status.OK
}

func (c *Conn) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) (map[string]status.Result, status.Result) {
	cmds := make(map[string]*redis.StatusCmd, len(items))
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range items {
			cmds[k] = p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	if res := resultOf(err); transport(res) {
		return nil, res
	}

	out := make(map[string]status.Result, len(items))
	stored := make([]string, 0, len(items))
	for k, cmd := range cmds {
		out[k] = resultOf(cmd.Err())
		if out[k].Ok() {
			stored = append(stored, k)
		}
	}
	if err := c.gens.BumpMany(ctx, stored); err != nil {
		return out, resultOf(err)
	}
	return out, status.OK
}

func (c *Conn) Delete(ctx context.Context, key string) status.Result {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return resultOf(err)
	}
	if n == 0 {
		return status.Failed(status.CodeNotFound, "")
	}
	return status.OK
}

func (c *Conn) DeleteMulti(ctx context.Context, keys []string) (map[string]status.Result, status.Result) {
	cmds := make(map[string]*redis.IntCmd, len(keys))
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			cmds[k] = p.Del(ctx, k)
		}
		return nil
	})
	if res := resultOf(err); transport(res) {
		return nil, res
	}

	out := make(map[string]status.Result, len(keys))
	for k, cmd := range cmds {
		n, err := cmd.Result()
		switch {
		case err != nil:
			out[k] = resultOf(err)
		case n == 0:
			out[k] = status.Failed(status.CodeNotFound, "")
		default:
			out[k] = status.OK
		}
	}
	return out, status.OK
}

// Increment creates missing counters at delta, as SSDB's incr does.
func (c *Conn) Increment(ctx context.Context, key string, delta int64) (int64, status.Result) {
	n, err := c.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, resultOf(err)
	}
	return n, c.written(ctx, key)
}

func (c *Conn) Decrement(ctx context.Context, key string, delta int64) (int64, status.Result) {
	n, err := c.client.DecrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, resultOf(err)
	}
	return n, c.written(ctx, key)
}

func (c *Conn) Flush(ctx context.Context) status.Result {
	return resultOf(c.client.FlushDB(ctx).Err())
}

func (c *Conn) Stats(ctx context.Context) (provider.Stats, status.Result) {
	info, err := c.client.Info(ctx).Result()
	if err != nil {
		return provider.Stats{}, resultOf(err)
	}
	raw := parseInfo(info)
	used, ok := uintField(raw, "used_memory")
	if !ok {
		return provider.Stats{}, status.Failed(status.CodeProtocolError, "info payload missing used_memory")
	}
	limit, _ := uintField(raw, "maxmemory")
	return provider.Stats{Server: c.addr, LimitMaxBytes: limit, Bytes: used, Raw: raw}, status.OK
}

func (c *Conn) Close(ctx context.Context) error {
	_ = c.gens.Close(ctx)
	if err := c.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// parseInfo reads "name:value" lines; section headers and blanks are skipped.
func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[name] = value
	}
	return out
}

func uintField(raw map[string]string, name string) (uint64, bool) {
	v, ok := raw[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	return n, err == nil
}
