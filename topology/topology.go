package topology

import (
	"github.com/unkn0wn-root/mcdb/status"
)

const (
	// DefaultWeight applies to parsed entries that do not carry a weight.
	DefaultWeight = 1
	// DefaultHost is used by the default topology.
	DefaultHost = "127.0.0.1"
)

// NoMasterReason is the ConfigError reason when a parsed list has no master.
const NoMasterReason = "no master server defined"

// Topology is an insertion-ordered set of ServerSpec.
// Every Topology returned by Parse or Default has at least one master.
type Topology struct {
	servers     []ServerSpec
	defaultPort int
}

// Default returns the topology used when no servers are configured: the local
// endpoint registered both as master and as slave.
func Default(defaultPort int) *Topology {
	t := &Topology{defaultPort: defaultPort}
	t.add(ServerSpec{Host: DefaultHost, Port: defaultPort, Weight: 0, Role: RoleMaster})
	t.add(ServerSpec{Host: DefaultHost, Port: defaultPort, Weight: 0, Role: RoleSlave})
	return t
}

// Parse resolves each entry (in order) with defaultPort as the port fallback and
// merges the results through the deduplicating add. The whole parse fails if
// any entry is invalid or if no master ends up in the result.
func Parse(defaultPort int, entries ...Entry) (*Topology, error) {
	t := &Topology{defaultPort: defaultPort}
	for i, e := range entries {
		if e == nil {
			return nil, status.Configf("servers", "entry %d is empty", i)
		}
		specs, err := e.resolve(defaultPort)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			if err := s.validate(); err != nil {
				return nil, err
			}
			t.add(s)
		}
	}
	if len(t.Masters()) == 0 {
		return nil, &status.ConfigError{Field: "servers", Reason: NoMasterReason}
	}
	return t, nil
}

// AddServer appends a server unless a structurally equal one is already present.
// A port of 0 means the topology's default port.
func (t *Topology) AddServer(host string, port, weight int, role Role) error {
	if port == 0 {
		port = t.defaultPort
	}
	s := ServerSpec{Host: host, Port: port, Weight: weight, Role: role}
	if err := s.validate(); err != nil {
		return err
	}
	t.add(s)
	return nil
}

func (t *Topology) add(s ServerSpec) bool {
	for _, have := range t.servers {
		if have == s {
			return false
		}
	}
	t.servers = append(t.servers, s)
	return true
}

// Servers returns a copy of the full list in insertion order.
func (t *Topology) Servers() []ServerSpec {
	out := make([]ServerSpec, len(t.servers))
	copy(out, t.servers)
	return out
}

// Masters returns the MASTER-tagged servers.
func (t *Topology) Masters() []ServerSpec {
	var out []ServerSpec
	for _, s := range t.servers {
		if s.Role == RoleMaster {
			out = append(out, s)
		}
	}
	return out
}

// Slaves returns every configured server, masters included: reads may be
// served by any endpoint.
func (t *Topology) Slaves() []ServerSpec { return t.Servers() }

// ForRole returns the subset serving role.
func (t *Topology) ForRole(r Role) []ServerSpec {
	if r == RoleMaster {
		return t.Masters()
	}
	return t.Slaves()
}

func (t *Topology) Len() int         { return len(t.servers) }
func (t *Topology) DefaultPort() int { return t.defaultPort }
