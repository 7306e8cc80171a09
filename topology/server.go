// Package topology turns the many accepted shapes of a server list into an
// ordered, deduplicated set of ServerSpec with at least one master.
package topology

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/mcdb/status"
)

// Role is the function a server has in the topology.
// The zero value is RoleSlave, the default for any entry without a role.
type Role int

const (
	RoleSlave Role = iota
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// ParseRole accepts "master" or "slave" in any case. An empty string is RoleSlave.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "slave":
		return RoleSlave, nil
	case "master":
		return RoleMaster, nil
	default:
		return RoleSlave, status.Configf("servers", "unknown server type %q", s)
	}
}

// ServerSpec is one backend endpoint. Values are compared structurally.
type ServerSpec struct {
	Host   string
	Port   int
	Weight int
	Role   Role
}

func (s ServerSpec) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s ServerSpec) String() string {
	return fmt.Sprintf("%s?weight=%d&type=%s", s.Addr(), s.Weight, s.Role)
}

func (s ServerSpec) validate() error {
	if s.Host == "" {
		return status.Configf("servers", "the list of servers must contain a host value")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return status.Configf("servers", "port %d out of range for host %q", s.Port, s.Host)
	}
	if s.Weight < 0 {
		return status.Configf("servers", "negative weight %d for host %q", s.Weight, s.Host)
	}
	return nil
}
