package promhooks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New("mcdb", reg)
	require.NoError(t, err)

	h.Connected(topology.RoleMaster, "a:1")
	h.ConnectFailed(topology.RoleSlave, "b:2", nil)
	h.BackendFault("get", status.CodeTimeout)
	h.BackendFault("get", status.CodeTimeout)
	h.BatchPartial("set_multi", 10, 3)
	h.CounterInitialized("increment", true)
	h.Reset("servers")

	assert.Equal(t, 1.0, testutil.ToFloat64(h.connects.WithLabelValues("master", "a:1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.connectErrors.WithLabelValues("slave", "b:2")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.faults.WithLabelValues("get", "TIMEOUT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.partialKeys.WithLabelValues("set_multi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.counterInits.WithLabelValues("increment", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.resets.WithLabelValues("servers")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New("mcdb", reg)
	require.NoError(t, err)
	_, err = New("mcdb", reg)
	assert.Error(t, err)
}
