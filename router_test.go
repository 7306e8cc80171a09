package mcdb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	c "github.com/unkn0wn-root/mcdb/codec"
	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

// stubConn answers the calls a test cares about; anything else panics
// through the nil embedded Conn.
type stubConn struct {
	provider.Conn
	addr   string
	gets   int
	closed bool

	get   func(key string) ([]byte, status.Result)
	incr  func(key string, delta int64) (int64, status.Result)
	add   func(key string, value []byte) status.Result
	stats provider.Stats
}

func (s *stubConn) Get(_ context.Context, key string) ([]byte, status.Result) {
	s.gets++
	if s.get != nil {
		return s.get(key)
	}
	return nil, status.Failed(status.CodeNotFound, "")
}

func (s *stubConn) Set(context.Context, string, []byte, time.Duration) status.Result {
	return status.OK
}

func (s *stubConn) Increment(_ context.Context, key string, delta int64) (int64, status.Result) {
	return s.incr(key, delta)
}

func (s *stubConn) Add(_ context.Context, key string, value []byte, _ time.Duration) status.Result {
	return s.add(key, value)
}

func (s *stubConn) Stats(context.Context) (provider.Stats, status.Result) {
	return s.stats, status.OK
}

func (s *stubConn) Close(context.Context) error {
	s.closed = true
	return nil
}

type stubDialer struct {
	dials []string
	fail  map[string]error
	conns []*stubConn
	setup func(*stubConn)
}

func (d *stubDialer) Name() string     { return "stub" }
func (d *stubDialer) DefaultPort() int { return 7000 }

func (d *stubDialer) Dial(_ context.Context, host string, port int, _ provider.LibOptions) (provider.Conn, error) {
	addr := topology.ServerSpec{Host: host, Port: port}.Addr()
	d.dials = append(d.dials, addr)
	if err := d.fail[addr]; err != nil {
		return nil, err
	}
	sc := &stubConn{addr: addr}
	if d.setup != nil {
		d.setup(sc)
	}
	d.conns = append(d.conns, sc)
	return sc, nil
}

type recHooks struct {
	NopHooks
	connected []string
	failed    []string
	resets    []string
	faults    []status.Code
	inits     []bool
}

func (h *recHooks) Connected(r topology.Role, s string) {
	h.connected = append(h.connected, r.String()+"="+s)
}
func (h *recHooks) ConnectFailed(_ topology.Role, s string, _ error) { h.failed = append(h.failed, s) }
func (h *recHooks) Reset(reason string)                              { h.resets = append(h.resets, reason) }
func (h *recHooks) BackendFault(_ string, code status.Code)          { h.faults = append(h.faults, code) }
func (h *recHooks) CounterInitialized(_ string, raced bool)          { h.inits = append(h.inits, raced) }

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newStubCache(t *testing.T, d *stubDialer, h *recHooks, servers ...topology.Entry) *adapter[string] {
	t.Helper()
	cc, err := New[string](Options[string]{
		Dialer:  d,
		Codec:   c.String{},
		Servers: servers,
		Hooks:   h,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	impl := mustImpl(t, cc)
	impl.router.pool.perm = identity
	return impl
}

func TestPoolRoleViews(t *testing.T) {
	topo, err := topology.Parse(7000,
		topology.URL("m1?type=master"),
		topology.URL("s1"),
		topology.URL("m2:7001?type=master"),
	)
	if err != nil {
		t.Fatal(err)
	}
	p := newServerPool(topo)
	if got := p.masterServers(); len(got) != 2 || got[0].Host != "m1" || got[1].Host != "m2" {
		t.Fatalf("masters %v", got)
	}
	slaves := p.slaveServers()
	if len(slaves) != 3 {
		t.Fatalf("slaves must be the whole topology, got %v", slaves)
	}

	p.perm = func(n int) []int { return []int{2, 0, 1}[:n] }
	got, err := p.candidates(topology.RoleSlave)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Host != "m2" || got[1].Host != "m1" || got[2].Host != "s1" {
		t.Fatalf("candidates not permuted: %v", got)
	}
}

func TestPoolEmptySubsetIsConfigError(t *testing.T) {
	p := newServerPool(&topology.Topology{})
	if _, err := p.candidates(topology.RoleMaster); !status.IsConfig(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestRoutingReadsSlaveWritesMaster(t *testing.T) {
	ctx := context.Background()
	d := &stubDialer{}
	h := &recHooks{}
	a := newStubCache(t, d, h,
		topology.URL("replica:7002"),
		topology.URL("primary:7001?type=master"),
	)

	if len(d.dials) != 0 {
		t.Fatalf("dialed before first use: %v", d.dials)
	}
	if _, err := a.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	want := []string{"primary:7001", "replica:7002"}
	if strings.Join(d.dials, ",") != strings.Join(want, ",") {
		t.Fatalf("dials %v want %v", d.dials, want)
	}
	if d.conns[1].gets != 2 || d.conns[0].gets != 0 {
		t.Fatalf("reads went to the wrong connection: master=%d slave=%d", d.conns[0].gets, d.conns[1].gets)
	}
	if len(h.connected) != 2 || h.connected[0] != "master=primary:7001" {
		t.Fatalf("connected hooks %v", h.connected)
	}
}

func TestConnectFallsBackToNextCandidate(t *testing.T) {
	ctx := context.Background()
	down := status.Failed(status.CodeConnectionFailure, "refused").Err("connect m1:7000")
	d := &stubDialer{fail: map[string]error{"m1:7000": down}}
	h := &recHooks{}
	a := newStubCache(t, d, h,
		topology.URL("m1?type=master"),
		topology.URL("m2?type=master"),
	)

	if _, err := a.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if strings.Join(d.dials, ",") != "m1:7000,m2:7000" {
		t.Fatalf("dials %v", d.dials)
	}
	if len(h.failed) != 1 || h.failed[0] != "m1:7000" {
		t.Fatalf("ConnectFailed hooks %v", h.failed)
	}
}

func TestConnectAllCandidatesDown(t *testing.T) {
	ctx := context.Background()
	down := status.Failed(status.CodeConnectionFailure, "refused").Err("connect")
	d := &stubDialer{fail: map[string]error{"m1:7000": down}}
	a := newStubCache(t, d, &recHooks{}, topology.URL("m1?type=master"))

	_, err := a.Set(ctx, "k", "v")
	if !status.IsFault(err) {
		t.Fatalf("expected BackendFault, got %v", err)
	}
	if a.router.connected(topology.RoleMaster) {
		t.Fatalf("role bound after a failed connect")
	}
}

func TestBackendFaultSurfaced(t *testing.T) {
	ctx := context.Background()
	d := &stubDialer{setup: func(sc *stubConn) {
		sc.get = func(string) ([]byte, status.Result) {
			return nil, status.Failed(status.CodeTimeout, "i/o timeout")
		}
	}}
	h := &recHooks{}
	a := newStubCache(t, d, h, topology.URL("m?type=master"))

	_, ok, err := a.Get(ctx, "k")
	var bf *status.BackendFault
	if ok || !errors.As(err, &bf) || bf.Code != status.CodeTimeout || bf.Op != "get" {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if _, err := a.Has(ctx, "k"); !status.IsFault(err) {
		t.Fatalf("Has: %v", err)
	}
	if len(h.faults) != 2 {
		t.Fatalf("fault hooks %v", h.faults)
	}
}

func TestCounterInitRaceIsTolerated(t *testing.T) {
	ctx := context.Background()
	var added []string
	d := &stubDialer{setup: func(sc *stubConn) {
		sc.incr = func(string, int64) (int64, status.Result) {
			return 0, status.Failed(status.CodeNotFound, "")
		}
		sc.add = func(_ string, v []byte) status.Result {
			added = append(added, string(v))
			return status.Failed(status.CodeNotStored, "")
		}
	}}
	h := &recHooks{}
	a := newStubCache(t, d, h, topology.URL("m?type=master"))

	n, err := a.Increment(ctx, "c", 7)
	if err != nil || n != 7 {
		t.Fatalf("Increment: %d, %v", n, err)
	}
	if len(added) != 1 || added[0] != "7" {
		t.Fatalf("add calls %v", added)
	}
	if len(h.inits) != 1 || !h.inits[0] {
		t.Fatalf("CounterInitialized hooks %v", h.inits)
	}
}

func TestCounterInitFaultSurfaces(t *testing.T) {
	ctx := context.Background()
	d := &stubDialer{setup: func(sc *stubConn) {
		sc.incr = func(string, int64) (int64, status.Result) {
			return 0, status.Failed(status.CodeNotFound, "")
		}
		sc.add = func(string, []byte) status.Result {
			return status.Failed(status.CodeServerError, "out of memory")
		}
	}}
	a := newStubCache(t, d, &recHooks{}, topology.URL("m?type=master"))
	if _, err := a.Increment(ctx, "c", 1); !status.IsFault(err) {
		t.Fatalf("expected BackendFault, got %v", err)
	}
}

func TestReconfigurationResetsConnections(t *testing.T) {
	ctx := context.Background()
	d := &stubDialer{}
	h := &recHooks{}
	a := newStubCache(t, d, h, topology.URL("m?type=master"))

	// nothing connected yet: no reset
	if err := a.SetLibOption("recv_timeout", 100); err != nil {
		t.Fatal(err)
	}
	if len(h.resets) != 0 {
		t.Fatalf("reset without connections: %v", h.resets)
	}

	if _, err := a.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	first := d.conns[0]
	if err := a.SetLibOption("compression", "true"); err != nil {
		t.Fatal(err)
	}
	if !first.closed || a.router.connected(topology.RoleMaster) {
		t.Fatalf("live connection kept after option change")
	}
	if _, err := a.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if len(d.dials) != 2 {
		t.Fatalf("expected a re-dial, dials %v", d.dials)
	}

	// an already configured server changes nothing
	if err := a.AddServer("m", 0, 1, topology.RoleMaster); err != nil {
		t.Fatal(err)
	}
	if len(h.resets) != 1 {
		t.Fatalf("resets %v", h.resets)
	}
	if err := a.AddServer("n", 7005, 1, topology.RoleSlave); err != nil {
		t.Fatal(err)
	}
	if err := a.SetServers(topology.URL("x")); !status.IsConfig(err) {
		t.Fatalf("SetServers without master: %v", err)
	}
	if len(a.Servers()) != 2 {
		t.Fatalf("rejected SetServers replaced the topology: %v", a.Servers())
	}
	want := []string{"lib_options", "servers"}
	if strings.Join(h.resets, ",") != strings.Join(want, ",") {
		t.Fatalf("resets %v want %v", h.resets, want)
	}
}

func TestSharedConnectionsAreNotDialedOrClosed(t *testing.T) {
	ctx := context.Background()
	shared := &stubConn{addr: "shared"}
	d := &stubDialer{}
	cc, err := New[string](Options[string]{
		Dialer:     d,
		Codec:      c.String{},
		MasterConn: shared,
		SlaveConn:  shared,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cc.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cc.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if len(d.dials) != 0 || shared.gets != 1 {
		t.Fatalf("dials=%v gets=%d", d.dials, shared.gets)
	}
	if err := cc.SetLibOption("poll_timeout", 10); err != nil {
		t.Fatal(err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if shared.closed {
		t.Fatalf("shared connection closed by the adapter")
	}
}

func TestAvailableSpaceFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	d := &stubDialer{setup: func(sc *stubConn) {
		sc.stats = provider.Stats{LimitMaxBytes: 100, Bytes: 150}
	}}
	a := newStubCache(t, d, &recHooks{}, topology.URL("m?type=master"))
	if n, err := a.AvailableSpace(ctx); err != nil || n != 0 {
		t.Fatalf("AvailableSpace: %d, %v", n, err)
	}
	if n, err := a.TotalSpace(ctx); err != nil || n != 100 {
		t.Fatalf("TotalSpace: %d, %v", n, err)
	}
}
