// Package sloghooks logs mcdb hook events through log/slog.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/mcdb"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FaultEvery   uint64
	PartialEvery uint64
	// Log successful connects and counter initialization at Debug.
	Verbose bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	faultCtr   atomic.Uint64
	partialCtr atomic.Uint64
}

var _ mcdb.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Connected(role topology.Role, server string) {
	if h.l == nil || !h.opts.Verbose {
		return
	}
	h.l.Debug("mcdb.connected",
		"role", role.String(),
		"server", server)
}

func (h *Hooks) ConnectFailed(role topology.Role, server string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("mcdb.connect_failed",
		"role", role.String(),
		"server", server,
		"err", err)
}

func (h *Hooks) Reset(reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("mcdb.reset", "reason", reason)
}

func (h *Hooks) BackendFault(op string, code status.Code) {
	if h.l == nil || !sample(h.opts.FaultEvery, &h.faultCtr) {
		return
	}
	h.l.Warn("mcdb.backend_fault",
		"op", op,
		"code", code.String())
}

func (h *Hooks) BatchPartial(op string, requested, failed int) {
	if h.l == nil || !sample(h.opts.PartialEvery, &h.partialCtr) {
		return
	}
	h.l.Info("mcdb.batch_partial",
		"op", op,
		"requested", requested,
		"failed", failed)
}

func (h *Hooks) CounterInitialized(op string, raced bool) {
	if h.l == nil || !h.opts.Verbose {
		return
	}
	h.l.Debug("mcdb.counter_initialized",
		"op", op,
		"raced", raced)
}
