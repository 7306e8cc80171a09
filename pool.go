package mcdb

import (
	"math/rand/v2"

	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

// serverPool exposes the role views of a topology and the order in which
// servers are tried when a role connects.
type serverPool struct {
	topo *topology.Topology
	perm func(n int) []int
}

func newServerPool(t *topology.Topology) *serverPool {
	return &serverPool{topo: t, perm: rand.Perm}
}

func (p *serverPool) masterServers() []topology.ServerSpec { return p.topo.Masters() }

// slaveServers is the whole topology: any server may serve reads.
func (p *serverPool) slaveServers() []topology.ServerSpec { return p.topo.Slaves() }

// candidates returns role's servers in random order. The first one is the
// pick; the rest are fallbacks if it cannot be dialed.
func (p *serverPool) candidates(role topology.Role) ([]topology.ServerSpec, error) {
	var subset []topology.ServerSpec
	if role == topology.RoleMaster {
		subset = p.masterServers()
	} else {
		subset = p.slaveServers()
	}
	if len(subset) == 0 {
		return nil, status.Configf("servers", "no %s server available", role)
	}
	out := make([]topology.ServerSpec, len(subset))
	for i, j := range p.perm(len(subset)) {
		out[i] = subset[j]
	}
	return out, nil
}
