package mcdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/unkn0wn-root/mcdb/codec"
	"github.com/unkn0wn-root/mcdb/internal/keys"
	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

type adapter[V any] struct {
	ns      string
	base    codec.Codec[V]
	codec   codec.Codec[V] // base, wrapped in codec.Snappy when COMPRESSION is on
	ttl     time.Duration
	dialer  provider.Dialer
	libOpts provider.LibOptions
	topo    *topology.Topology
	router  *router
	log     Logger
	hooks   Hooks
	caps    Capabilities
}

func newAdapter[V any](opts Options[V]) (*adapter[V], error) {
	if opts.Dialer == nil {
		return nil, status.Configf("dialer", "a protocol dialer is required")
	}
	if err := checkNamespace(opts.Namespace); err != nil {
		return nil, err
	}
	if opts.TTL < 0 || (opts.TTL > 0 && opts.TTL < minTTL) {
		return nil, status.Configf("ttl", "%s is below the minimum of %s", opts.TTL, minTTL)
	}
	libOpts, err := normalizeLibOptions(opts.LibOptions)
	if err != nil {
		return nil, err
	}

	var topo *topology.Topology
	if opts.Servers == nil {
		topo = topology.Default(opts.Dialer.DefaultPort())
	} else if topo, err = topology.Parse(opts.Dialer.DefaultPort(), opts.Servers...); err != nil {
		return nil, err
	}

	a := &adapter[V]{
		ns:      opts.Namespace,
		ttl:     opts.TTL,
		dialer:  opts.Dialer,
		libOpts: libOpts,
		topo:    topo,
		caps:    newCapabilities(),
	}

	// defaults
	a.base = coalesce[codec.Codec[V]](opts.Codec, codec.JSON[V]{})
	a.log = coalesce[Logger](opts.Logger, NopLogger{}).With(Fields{"protocol": opts.Dialer.Name()})
	a.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	a.applyCodec()

	a.router = newRouter(a.dialer, newServerPool(topo), libOpts, a.log, a.hooks)
	a.router.shared[topology.RoleMaster] = opts.MasterConn
	a.router.shared[topology.RoleSlave] = opts.SlaveConn
	return a, nil
}

func checkNamespace(ns string) error {
	if len(ns) > MaxNamespaceLength {
		return status.Configf("namespace", "%d characters exceeds the limit of %d", len(ns), MaxNamespaceLength)
	}
	return nil
}

func normalizeLibOptions(in map[string]any) (provider.LibOptions, error) {
	out := make(provider.LibOptions, len(in))
	for name, v := range in {
		opt, err := provider.ParseOption(name)
		if err != nil {
			return nil, err
		}
		if err := provider.Check(opt, v); err != nil {
			return nil, err
		}
		out[opt] = v
	}
	return out, nil
}

func (a *adapter[V]) applyCodec() {
	if a.libOpts.Bool(provider.OptCompression, false) {
		a.codec = codec.Snappy[V]{Inner: a.base}
		return
	}
	a.codec = a.base
}

func (a *adapter[V]) master(ctx context.Context) (provider.Conn, error) {
	return a.router.ensureConnected(ctx, topology.RoleMaster)
}

func (a *adapter[V]) slave(ctx context.Context) (provider.Conn, error) {
	return a.router.ensureConnected(ctx, topology.RoleSlave)
}

func (a *adapter[V]) key(k string) (string, error) {
	if k == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	pk := keys.Prefix(a.ns, k)
	if len(pk) > MaxKeyLength {
		return "", fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidKey, k, MaxKeyLength)
	}
	return pk, nil
}

// fault reports a result that has no expected outcome and returns its error.
func (a *adapter[V]) fault(op, key string, r status.Result) error {
	a.log.Warn("backend fault", Fields{"op": op, "key": key, "code": r.Code.String(), "msg": r.Message})
	a.hooks.BackendFault(op, r.Code)
	return r.Err(op)
}

func (a *adapter[V]) decode(key string, b []byte) (V, error) {
	v, err := a.codec.Decode(b)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("mcdb: decode %q: %w", key, err)
	}
	return v, nil
}

func (a *adapter[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	k, err := a.key(key)
	if err != nil {
		return zero, false, err
	}
	conn, err := a.slave(ctx)
	if err != nil {
		return zero, false, err
	}
	b, res := conn.Get(ctx, k)
	switch res.Outcome() {
	case status.Success:
		v, err := a.decode(key, b)
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	case status.NotFound:
		return zero, false, nil
	default:
		return zero, false, a.fault("get", key, res)
	}
}

func (a *adapter[V]) Gets(ctx context.Context, key string) (V, Token, bool, error) {
	var zero V
	k, err := a.key(key)
	if err != nil {
		return zero, Token{}, false, err
	}
	conn, err := a.master(ctx)
	if err != nil {
		return zero, Token{}, false, err
	}
	it, res := conn.Gets(ctx, k)
	switch res.Outcome() {
	case status.Success:
		v, err := a.decode(key, it.Value)
		if err != nil {
			return zero, Token{}, false, err
		}
		return v, it.Token, true, nil
	case status.NotFound:
		return zero, Token{}, false, nil
	default:
		return zero, Token{}, false, a.fault("gets", key, res)
	}
}

// getRaw fetches the present subset of ks from a slave, keyed by caller key.
func (a *adapter[V]) getRaw(ctx context.Context, op string, ks []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ks))
	if len(ks) == 0 {
		return out, nil
	}
	for _, k := range ks {
		if _, err := a.key(k); err != nil {
			return nil, err
		}
	}
	pks, back := keys.PrefixAll(a.ns, ks)
	conn, err := a.slave(ctx)
	if err != nil {
		return nil, err
	}
	got, res := conn.GetMulti(ctx, pks)
	if !res.Ok() {
		return nil, a.fault(op, "", res)
	}
	for pk, b := range got {
		if k, ok := back[pk]; ok {
			out[k] = b
		}
	}
	return out, nil
}

func (a *adapter[V]) GetMulti(ctx context.Context, ks []string) (map[string]V, error) {
	raw, err := a.getRaw(ctx, "get_multi", ks)
	if err != nil {
		return nil, err
	}
	out := make(map[string]V, len(raw))
	for k, b := range raw {
		v, err := a.decode(k, b)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (a *adapter[V]) Has(ctx context.Context, key string) (bool, error) {
	k, err := a.key(key)
	if err != nil {
		return false, err
	}
	conn, err := a.slave(ctx)
	if err != nil {
		return false, err
	}
	_, res := conn.Get(ctx, k)
	switch res.Outcome() {
	case status.Success:
		return true, nil
	case status.NotFound:
		return false, nil
	default:
		return false, a.fault("has", key, res)
	}
}

// HasMulti returns the keys that exist, in the order they were asked for.
func (a *adapter[V]) HasMulti(ctx context.Context, ks []string) ([]string, error) {
	raw, err := a.getRaw(ctx, "has_multi", ks)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, k := range ks {
		if _, ok := raw[k]; ok {
			out = append(out, k)
			delete(raw, k)
		}
	}
	return out, nil
}

func (a *adapter[V]) Metadata(ctx context.Context, ks []string) (map[string]Metadata, error) {
	raw, err := a.getRaw(ctx, "metadata", ks)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Metadata, len(raw))
	for k := range raw {
		out[k] = Metadata{}
	}
	return out, nil
}

// write runs a single-key store on the master. accept lists the outcomes
// that mean "not written" rather than a fault.
func (a *adapter[V]) write(ctx context.Context, op, key string, value V,
	do func(provider.Conn, string, []byte) status.Result, accept ...status.Outcome) (bool, error) {
	k, err := a.key(key)
	if err != nil {
		return false, err
	}
	b, err := a.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("mcdb: encode %q: %w", key, err)
	}
	conn, err := a.master(ctx)
	if err != nil {
		return false, err
	}
	res := do(conn, k, b)
	if res.Ok() {
		return true, nil
	}
	out := res.Outcome()
	for _, o := range accept {
		if out == o {
			a.log.Debug(op+" not applied", Fields{"key": key, "outcome": out.String()})
			return false, nil
		}
	}
	return false, a.fault(op, key, res)
}

func (a *adapter[V]) Set(ctx context.Context, key string, value V) (bool, error) {
	return a.write(ctx, "set", key, value, func(c provider.Conn, k string, b []byte) status.Result {
		return c.Set(ctx, k, b, a.ttl)
	})
}

func (a *adapter[V]) Add(ctx context.Context, key string, value V) (bool, error) {
	return a.write(ctx, "add", key, value, func(c provider.Conn, k string, b []byte) status.Result {
		return c.Add(ctx, k, b, a.ttl)
	}, status.NotStored, status.CASConflict)
}

// Replace is existence-checked on every backend: a missing key is false.
func (a *adapter[V]) Replace(ctx context.Context, key string, value V) (bool, error) {
	return a.write(ctx, "replace", key, value, func(c provider.Conn, k string, b []byte) status.Result {
		return c.Replace(ctx, k, b, a.ttl)
	}, status.NotStored, status.NotFound)
}

// CheckAndSet is false when the token is stale or the key is gone.
func (a *adapter[V]) CheckAndSet(ctx context.Context, token Token, key string, value V) (bool, error) {
	return a.write(ctx, "cas", key, value, func(c provider.Conn, k string, b []byte) status.Result {
		return c.CompareAndSwap(ctx, token, k, b, a.ttl)
	}, status.CASConflict, status.NotFound, status.NotStored)
}

func (a *adapter[V]) Delete(ctx context.Context, key string) (bool, error) {
	k, err := a.key(key)
	if err != nil {
		return false, err
	}
	conn, err := a.master(ctx)
	if err != nil {
		return false, err
	}
	res := conn.Delete(ctx, k)
	switch res.Outcome() {
	case status.Success:
		return true, nil
	case status.NotFound:
		return false, nil
	default:
		return false, a.fault("delete", key, res)
	}
}

// batch splits caller keys into valid backend keys and ErrInvalidKey failures.
func (a *adapter[V]) batch(ks []string) ([]string, map[string]string, map[string]error) {
	failed := make(map[string]error)
	valid := make([]string, 0, len(ks))
	for _, k := range ks {
		if _, err := a.key(k); err != nil {
			failed[k] = err
			continue
		}
		valid = append(valid, k)
	}
	pks, back := keys.PrefixAll(a.ns, valid)
	return pks, back, failed
}

// collect folds per-key results into a BatchResult.
func (a *adapter[V]) collect(op string, requested int, back map[string]string,
	results map[string]status.Result, failed map[string]error) BatchResult {
	out := BatchResult{Succeeded: make([]string, 0, len(results)), Failed: failed}
	for pk, k := range back {
		res, ok := results[pk]
		switch {
		case !ok:
			out.Failed[k] = status.Failed(status.CodeUnknown, "no reply for key").Err(op)
		case res.Ok():
			out.Succeeded = append(out.Succeeded, k)
		default:
			if res.Outcome() == status.Fatal {
				a.hooks.BackendFault(op, res.Code)
			}
			out.Failed[k] = keyError(op, res)
		}
	}
	if len(out.Failed) > 0 {
		a.log.Debug(op+" partial", Fields{"requested": requested, "failed": len(out.Failed)})
		a.hooks.BatchPartial(op, requested, len(out.Failed))
	}
	return out
}

// SetMulti stores items through the backend's native multi-set. Keys that
// did not get stored are reported in Failed.
func (a *adapter[V]) SetMulti(ctx context.Context, items map[string]V) (BatchResult, error) {
	ks := make([]string, 0, len(items))
	for k := range items {
		ks = append(ks, k)
	}
	pks, back, failed := a.batch(ks)
	if len(pks) == 0 {
		return a.collect("set_multi", len(items), nil, nil, failed), nil
	}

	enc := make(map[string][]byte, len(pks))
	for _, pk := range pks {
		k := back[pk]
		b, err := a.codec.Encode(items[k])
		if err != nil {
			failed[k] = fmt.Errorf("mcdb: encode %q: %w", k, err)
			delete(back, pk)
			continue
		}
		enc[pk] = b
	}

	conn, err := a.master(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	results, res := conn.SetMulti(ctx, enc, a.ttl)
	if !res.Ok() {
		return BatchResult{}, a.fault("set_multi", "", res)
	}
	return a.collect("set_multi", len(items), back, results, failed), nil
}

// DeleteMulti reports missing keys in Failed as ErrNotFound.
func (a *adapter[V]) DeleteMulti(ctx context.Context, ks []string) (BatchResult, error) {
	pks, back, failed := a.batch(ks)
	if len(pks) == 0 {
		return a.collect("delete_multi", len(ks), nil, nil, failed), nil
	}
	conn, err := a.master(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	results, res := conn.DeleteMulti(ctx, pks)
	if !res.Ok() {
		return BatchResult{}, a.fault("delete_multi", "", res)
	}
	return a.collect("delete_multi", len(ks), back, results, failed), nil
}

func (a *adapter[V]) Increment(ctx context.Context, key string, n int64) (int64, error) {
	return a.counter(ctx, "increment", key, n, provider.Conn.Increment)
}

func (a *adapter[V]) Decrement(ctx context.Context, key string, n int64) (int64, error) {
	return a.counter(ctx, "decrement", key, n, provider.Conn.Decrement)
}

type counterFunc func(c provider.Conn, ctx context.Context, key string, delta int64) (int64, status.Result)

// counter applies delta and creates a missing counter with an add. Losing
// that add to a concurrent initializer is not an error: the value the caller
// intended is returned.
func (a *adapter[V]) counter(ctx context.Context, op, key string, n int64, apply counterFunc) (int64, error) {
	k, err := a.key(key)
	if err != nil {
		return 0, err
	}
	conn, err := a.master(ctx)
	if err != nil {
		return 0, err
	}
	v, res := apply(conn, ctx, k, n)
	switch res.Outcome() {
	case status.Success:
		return v, nil
	case status.NotFound:
	default:
		return 0, a.fault(op, key, res)
	}

	initial := n
	if op == "decrement" {
		initial = -n
	}
	res = conn.Add(ctx, k, []byte(strconv.FormatInt(initial, 10)), a.ttl)
	switch res.Outcome() {
	case status.Success, status.NotStored:
		raced := !res.Ok()
		a.log.Debug("counter initialized", Fields{"op": op, "key": key, "value": initial, "raced": raced})
		a.hooks.CounterInitialized(op, raced)
		return initial, nil
	default:
		return 0, a.fault(op, key, res)
	}
}

// Flush clears the master. Slaves see it through replication.
func (a *adapter[V]) Flush(ctx context.Context) (bool, error) {
	conn, err := a.master(ctx)
	if err != nil {
		return false, err
	}
	if res := conn.Flush(ctx); !res.Ok() {
		return false, a.fault("flush", "", res)
	}
	return true, nil
}

func (a *adapter[V]) Stats(ctx context.Context) (provider.Stats, error) {
	conn, err := a.master(ctx)
	if err != nil {
		return provider.Stats{}, err
	}
	st, res := conn.Stats(ctx)
	if !res.Ok() {
		return provider.Stats{}, a.fault("stats", "", res)
	}
	return st, nil
}

func (a *adapter[V]) TotalSpace(ctx context.Context) (uint64, error) {
	st, err := a.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.LimitMaxBytes, nil
}

// AvailableSpace is limit_maxbytes - bytes, floored at zero.
func (a *adapter[V]) AvailableSpace(ctx context.Context) (uint64, error) {
	st, err := a.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if st.Bytes >= st.LimitMaxBytes {
		return 0, nil
	}
	return st.LimitMaxBytes - st.Bytes, nil
}

func (a *adapter[V]) Capabilities() Capabilities { return a.caps }

func (a *adapter[V]) Namespace() string { return a.ns }

// SetNamespace applies to the next operation; connections are kept.
func (a *adapter[V]) SetNamespace(ns string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	a.ns = ns
	return nil
}

// LibOption returns the value set for name, or nil if it is unset.
func (a *adapter[V]) LibOption(name string) (any, error) {
	opt, err := provider.ParseOption(name)
	if err != nil {
		return nil, err
	}
	return a.libOpts[opt], nil
}

func (a *adapter[V]) SetLibOption(name string, value any) error {
	return a.SetLibOptions(map[string]any{name: value})
}

// SetLibOptions validates every option before applying any. Live
// connections are dropped and re-dialed with the new options on next use.
func (a *adapter[V]) SetLibOptions(opts map[string]any) error {
	parsed, err := normalizeLibOptions(opts)
	if err != nil {
		return err
	}
	a.libOpts = a.libOpts.Merge(parsed)
	a.router.opts = a.libOpts
	a.applyCodec()
	return a.router.reset(context.Background(), "lib_options")
}

func (a *adapter[V]) Servers() []topology.ServerSpec { return a.topo.Servers() }

// SetServers replaces the topology. On error the current one is kept.
func (a *adapter[V]) SetServers(entries ...topology.Entry) error {
	t, err := topology.Parse(a.dialer.DefaultPort(), entries...)
	if err != nil {
		return err
	}
	a.topo = t
	a.router.pool = newServerPool(t)
	return a.router.reset(context.Background(), "servers")
}

// AddServer is a no-op for a server that is already configured.
func (a *adapter[V]) AddServer(host string, port, weight int, role topology.Role) error {
	before := a.topo.Len()
	if err := a.topo.AddServer(host, port, weight, role); err != nil {
		return err
	}
	if a.topo.Len() == before {
		return nil
	}
	return a.router.reset(context.Background(), "servers")
}

func (a *adapter[V]) Close(ctx context.Context) error {
	return a.router.closeAll(ctx)
}
