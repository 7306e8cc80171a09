// Package provider defines the network client contract the mcdb adapter drives.
//
// A Conn is bound to exactly one server. Implementations must be byte-for-byte
// transparent: Get returns exactly the bytes previously stored for a key.
// Every call reports a status.Result so the adapter can classify the outcome
// without knowing anything about the backend's native errors.
//
// Keys passed to a Conn are already namespaced by the adapter.
package provider

import (
	"context"
	"time"

	"github.com/unkn0wn-root/mcdb/status"
)

// Token is an opaque compare-and-set handle obtained from Gets.
// Version is used by providers with numeric versions; Handle carries any
// provider-private state (e.g. the client item a CAS must be issued with).
type Token struct {
	Version uint64
	Handle  any
}

// Item is a value plus the token that identifies its current version.
type Item struct {
	Key   string
	Value []byte
	Token Token
}

// Stats is the byte accounting of one server.
type Stats struct {
	Server        string
	LimitMaxBytes uint64
	Bytes         uint64
	Raw           map[string]string
}

// Conn is a connection to one backend server.
type Conn interface {
	// Get returns the value; a miss is reported as CodeNotFound.
	Get(ctx context.Context, key string) ([]byte, status.Result)
	// Gets is Get plus the CAS token of the returned value.
	Gets(ctx context.Context, key string) (Item, status.Result)
	// GetMulti returns the keys that exist. Missing keys are simply absent.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, status.Result)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) status.Result
	// SetMulti reports a result per key. The returned Result covers failures
	// of the whole call (e.g. transport errors before any key was sent).
	SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) (map[string]status.Result, status.Result)
	// Add stores only if the key is absent (CodeNotStored otherwise).
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) status.Result
	// Replace stores only if the key exists (CodeNotStored otherwise).
	Replace(ctx context.Context, key string, value []byte, ttl time.Duration) status.Result
	// CompareAndSwap stores only if the stored version still matches token
	// (CodeDataExists otherwise, CodeNotFound if the key vanished).
	CompareAndSwap(ctx context.Context, token Token, key string, value []byte, ttl time.Duration) status.Result

	Delete(ctx context.Context, key string) status.Result
	DeleteMulti(ctx context.Context, keys []string) (map[string]status.Result, status.Result)

	// Increment and Decrement return the new counter value. A missing key is
	// CodeNotFound, unless the backend creates counters implicitly at delta.
	Increment(ctx context.Context, key string, delta int64) (int64, status.Result)
	Decrement(ctx context.Context, key string, delta int64) (int64, status.Result)

	Flush(ctx context.Context) status.Result
	Stats(ctx context.Context) (Stats, status.Result)

	Close(ctx context.Context) error
}

// Dialer opens connections for one protocol.
type Dialer interface {
	// Name identifies the protocol in logs ("memcache", "ssdb", ...).
	Name() string
	// DefaultPort is used for server entries without an explicit port.
	DefaultPort() int
	// Dial opens one connection to host:port configured with opts.
	Dial(ctx context.Context, host string, port int, opts LibOptions) (Conn, error)
}
