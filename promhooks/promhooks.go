// Package promhooks exports mcdb hook events as prometheus counters.
package promhooks

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/mcdb"
	"github.com/unkn0wn-root/mcdb/status"
	"github.com/unkn0wn-root/mcdb/topology"
)

// Hooks counts events. Register it once per registry; the collectors are
// shared by every adapter the Hooks value is passed to.
type Hooks struct {
	connects      *prometheus.CounterVec
	connectErrors *prometheus.CounterVec
	resets        *prometheus.CounterVec
	faults        *prometheus.CounterVec
	partials      *prometheus.CounterVec
	partialKeys   *prometheus.CounterVec
	counterInits  *prometheus.CounterVec
}

var _ mcdb.Hooks = (*Hooks)(nil)

// New builds the collectors under namespace and registers them on reg.
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connects_total",
				Help:      "Connections established per role and server",
			},
			[]string{"role", "server"},
		),
		connectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_errors_total",
				Help:      "Failed connection attempts per role and server",
			},
			[]string{"role", "server"},
		),
		resets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resets_total",
				Help:      "Connection resets caused by reconfiguration",
			},
			[]string{"reason"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_faults_total",
				Help:      "Backend results with no expected outcome",
			},
			[]string{"op", "code"},
		),
		partials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_partial_total",
				Help:      "Batch calls that left some keys unprocessed",
			},
			[]string{"op"},
		),
		partialKeys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_failed_keys_total",
				Help:      "Keys left unprocessed by batch calls",
			},
			[]string{"op"},
		),
		counterInits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_inits_total",
				Help:      "Counters created on a miss",
			},
			[]string{"op", "raced"},
		),
	}
	for _, c := range []prometheus.Collector{
		h.connects, h.connectErrors, h.resets, h.faults, h.partials, h.partialKeys, h.counterInits,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) Connected(role topology.Role, server string) {
	h.connects.WithLabelValues(role.String(), server).Inc()
}

func (h *Hooks) ConnectFailed(role topology.Role, server string, _ error) {
	h.connectErrors.WithLabelValues(role.String(), server).Inc()
}

func (h *Hooks) Reset(reason string) { h.resets.WithLabelValues(reason).Inc() }

func (h *Hooks) BackendFault(op string, code status.Code) {
	h.faults.WithLabelValues(op, code.String()).Inc()
}

func (h *Hooks) BatchPartial(op string, _, failed int) {
	h.partials.WithLabelValues(op).Inc()
	h.partialKeys.WithLabelValues(op).Add(float64(failed))
}

func (h *Hooks) CounterInitialized(op string, raced bool) {
	h.counterInits.WithLabelValues(op, strconv.FormatBool(raced)).Inc()
}
