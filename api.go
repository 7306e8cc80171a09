package mcdb

import (
	"context"
	"sort"
	"time"

	c "github.com/unkn0wn-root/mcdb/codec"
	pr "github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/topology"
)

// Token is the compare-and-set handle returned by Gets.
type Token = pr.Token

// Metadata is the per-key metadata reported by Metadata. The backends expose
// none, so it is always empty.
type Metadata map[string]any

// BatchResult reports a multi-key write. Keys in Failed were not processed:
// their error is ErrNotFound, ErrNotStored, ErrCASConflict, ErrInvalidKey or
// a *status.BackendFault. A non-empty Failed is a partial failure, not an
// error of the call.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

// FailedKeys returns the keys of Failed in sorted order.
func (b BatchResult) FailedKeys() []string {
	out := make([]string, 0, len(b.Failed))
	for k := range b.Failed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Cache is the adapter's operation surface.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	// Reads (slave connection)
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	GetMulti(ctx context.Context, keys []string) (map[string]V, error)
	Has(ctx context.Context, key string) (bool, error)
	HasMulti(ctx context.Context, keys []string) ([]string, error)
	Metadata(ctx context.Context, keys []string) (map[string]Metadata, error)

	// Gets reads the value with its CAS token from the master, the server
	// CheckAndSet compares the token against.
	Gets(ctx context.Context, key string) (v V, token Token, ok bool, err error)

	// Writes (master connection)
	Set(ctx context.Context, key string, value V) (bool, error)
	SetMulti(ctx context.Context, items map[string]V) (BatchResult, error)
	Add(ctx context.Context, key string, value V) (bool, error)
	Replace(ctx context.Context, key string, value V) (bool, error)
	CheckAndSet(ctx context.Context, token Token, key string, value V) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMulti(ctx context.Context, keys []string) (BatchResult, error)

	// Counters are stored as decimal text, bypassing the codec. A missing
	// counter is created at n (Increment) or -n (Decrement).
	Increment(ctx context.Context, key string, n int64) (int64, error)
	// Decrement creates a missing counter at -n. memcached only counts
	// unsigned values, so later counter calls on such a key fail there.
	Decrement(ctx context.Context, key string, n int64) (int64, error)

	Flush(ctx context.Context) (bool, error)
	Stats(ctx context.Context) (pr.Stats, error)
	TotalSpace(ctx context.Context) (uint64, error)
	AvailableSpace(ctx context.Context) (uint64, error)

	// Configuration
	Capabilities() Capabilities
	Namespace() string
	SetNamespace(ns string) error
	LibOption(name string) (any, error)
	SetLibOption(name string, value any) error
	SetLibOptions(opts map[string]any) error
	Servers() []topology.ServerSpec
	SetServers(entries ...topology.Entry) error
	AddServer(host string, port, weight int, role topology.Role) error

	Close(ctx context.Context) error
}

// Options configure an adapter.
// Only Dialer is required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Dialer pr.Dialer // protocol client, e.g. memcache.NewDialer(memcache.Config{})

	Namespace  string           // key prefix, at most MaxNamespaceLength characters
	Servers    []topology.Entry // nil => 127.0.0.1:<default port> as master and slave
	LibOptions map[string]any   // backend tuning, names as in provider.ParseOption
	Codec      c.Codec[V]       // nil => codec.JSON[V]
	TTL        time.Duration    // 0 => no expiry; otherwise at least one second
	Logger     Logger           // if nil, NopLogger is used
	Hooks      Hooks            // if nil, NopHooks is used

	// Pre-established connections shared with other adapters. They are
	// used instead of dialing and are never closed by the adapter.
	MasterConn pr.Conn
	SlaveConn  pr.Conn
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newAdapter[V](opts)
}
