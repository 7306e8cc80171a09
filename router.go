package mcdb

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/mcdb/provider"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

// binding is the Connected state of one role. A nil *binding is Unconnected.
type binding struct {
	conn   provider.Conn
	server topology.ServerSpec
	shared bool
}

// router holds at most one connection per role. ensureConnected is the only
// transition to Connected; reset is the only way back.
type router struct {
	dialer provider.Dialer
	pool   *serverPool
	opts   provider.LibOptions
	log    Logger
	hooks  Hooks

	shared [2]provider.Conn // indexed by topology.Role
	bound  [2]*binding
}

func newRouter(d provider.Dialer, pool *serverPool, opts provider.LibOptions, log Logger, hooks Hooks) *router {
	return &router{dialer: d, pool: pool, opts: opts, log: log, hooks: hooks}
}

func (r *router) connected(role topology.Role) bool { return r.bound[role] != nil }

func (r *router) ensureConnected(ctx context.Context, role topology.Role) (provider.Conn, error) {
	if b := r.bound[role]; b != nil {
		return b.conn, nil
	}
	if sc := r.shared[role]; sc != nil {
		r.bound[role] = &binding{conn: sc, shared: true}
		return sc, nil
	}

	servers, err := r.pool.candidates(role)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, s := range servers {
		conn, err := r.dialer.Dial(ctx, s.Host, s.Port, r.opts)
		if err != nil {
			r.log.Warn("connect failed", Fields{"role": role.String(), "server": s.Addr(), "err": err})
			r.hooks.ConnectFailed(role, s.Addr(), err)
			if status.IsConfig(err) || ctx.Err() != nil {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		r.bound[role] = &binding{conn: conn, server: s}
		r.log.Info("connected", Fields{"role": role.String(), "server": s.Addr(), "protocol": r.dialer.Name()})
		r.hooks.Connected(role, s.Addr())
		return conn, nil
	}
	return nil, errors.Join(errs...)
}

// reset closes owned connections and returns both roles to Unconnected.
// Shared connections belong to the caller and are only unbound.
func (r *router) reset(ctx context.Context, reason string) error {
	if r.bound[topology.RoleMaster] == nil && r.bound[topology.RoleSlave] == nil {
		return nil
	}
	err := r.closeAll(ctx)
	r.log.Info("connections reset", Fields{"reason": reason})
	r.hooks.Reset(reason)
	return err
}

func (r *router) closeAll(ctx context.Context) error {
	var errs []error
	for role, b := range r.bound {
		if b == nil {
			continue
		}
		r.bound[role] = nil
		if b.shared {
			continue
		}
		if err := b.conn.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
