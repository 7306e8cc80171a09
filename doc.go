// Package mcdb is a cache-storage adapter over memcache-style and SSDB-style
// backends. It hides server addressing, value serialization and the
// backends' native error codes behind one operation surface.
//
// Components:
//   - topology: parses the many accepted server-list shapes into MASTER and
//     SLAVE endpoints (at least one master, duplicates suppressed).
//   - provider.Dialer / provider.Conn: the network client for one protocol
//     (provider/memcache, provider/ssdb, provider/bigcache).
//   - status: backend result codes and their five outcomes.
//   - codec.Codec[V]: (de)serializes V <-> []byte.
//
// Routing:
//
//	reads  (Get, GetMulti, Has, HasMulti, Metadata) -> slave connection
//	writes (Set, Add, Replace, CheckAndSet, Delete, counters, Flush) -> master connection
//
// Each role's connection is opened on first use against a server picked at
// random from that role's subset, and kept until Close or until the server
// list or lib options change. Slaves are drawn from every configured server,
// masters included.
//
// Errors: expected negative outcomes (missing key, add on existing key,
// stale CAS token) come back as false, never as errors. Anything else the
// backend reports is a *status.BackendFault. Nothing is retried.
//
// Namespace: keys are prefixed by the adapter on every call, so
// SetNamespace takes effect on the next operation without reconnecting.
//
// A Cache is not safe for concurrent use; callers sharing one across
// goroutines must serialize access themselves.
package mcdb
