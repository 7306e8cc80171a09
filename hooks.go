package mcdb

import (
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The adapter calls them on hot paths.
type Hooks interface {
	// A role's connection was established against server.
	Connected(role topology.Role, server string)

	// Dialing server for role failed; the next candidate is tried.
	ConnectFailed(role topology.Role, server string, err error)

	// Connections were dropped after a reconfiguration.
	// reason ∈ {"lib_options", "servers"}
	Reset(reason string)

	// The backend reported a code that maps to no expected outcome.
	BackendFault(op string, code status.Code)

	// A batch call left some keys unprocessed.
	BatchPartial(op string, requested, failed int)

	// A counter was created by Increment/Decrement on a miss.
	// raced is true when a concurrent initializer got there first.
	CounterInitialized(op string, raced bool)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Connected(topology.Role, string)            {}
func (NopHooks) ConnectFailed(topology.Role, string, error) {}
func (NopHooks) Reset(string)                               {}
func (NopHooks) BackendFault(string, status.Code)           {}
func (NopHooks) BatchPartial(string, int, int)              {}
func (NopHooks) CounterInitialized(string, bool)            {}
