// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FaultEvery:   10, // sample logs: ~every 10th backend fault
//	    PartialEvery: 1,  // log every partial batch
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := mcdb.New[User](mcdb.Options[User]{
//	    Namespace: "app:prod:user:",
//	    Dialer:    memcache.NewDialer(memcache.Config{}),
//	    Servers:   []topology.Entry{topology.List("cache1?type=master,cache2")},
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/mcdb"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

type Hooks struct {
	inner   mcdb.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ mcdb.Hooks = (*Hooks)(nil)

func New(inner mcdb.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Connected(r topology.Role, s string) { h.try(func() { h.inner.Connected(r, s) }) }
func (h *Hooks) Reset(reason string)                 { h.try(func() { h.inner.Reset(reason) }) }
func (h *Hooks) ConnectFailed(r topology.Role, s string, err error) {
	h.try(func() { h.inner.ConnectFailed(r, s, err) })
}
func (h *Hooks) BackendFault(op string, code status.Code) {
	h.try(func() { h.inner.BackendFault(op, code) })
}
func (h *Hooks) BatchPartial(op string, requested, failed int) {
	h.try(func() { h.inner.BatchPartial(op, requested, failed) })
}
func (h *Hooks) CounterInitialized(op string, raced bool) {
	h.try(func() { h.inner.CounterInitialized(op, raced) })
}
