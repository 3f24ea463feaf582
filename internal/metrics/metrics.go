// Package metrics exposes per-port HSMS connection health as Prometheus
// collectors: connection state, pending-send depth, sequence counters,
// and timer expiries.
//
// Grounded in runZeroInc-sockstats/pkg/exporter, a TCP-connection-health
// Prometheus collector for the same kind of per-connection socket state
// this package tracks for HSMS ports, using the library's
// GaugeVec/CounterVec API rather than rolling a bespoke Collector since
// our metrics are simple counters/gauges with a "port" label, not data
// read back out of the kernel per-collect.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors one Manager's ports report through.
// The zero value is not usable; construct with New.
type Metrics struct {
	ConnectionState   *prometheus.GaugeVec
	PendingSendDepth  *prometheus.GaugeVec
	SendsTotal        *prometheus.CounterVec
	T3TimeoutsTotal   *prometheus.CounterVec
	T6TimeoutsTotal   *prometheus.CounterVec
	T7TimeoutsTotal   *prometheus.CounterVec
	LinktestsTotal    *prometheus.CounterVec
	SystemBytesIssued prometheus.Counter
	DataIDIssued      prometheus.Counter
}

// New creates a Metrics bundle and registers its collectors with reg. A
// nil reg skips registration (useful for tests that construct a Metrics
// without a registry).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "secs2hsms",
			Name:      "port_connection_state",
			Help:      "Current PortConnectionState, one gauge per port with value 1 and all other states' series at 0.",
		}, []string{"port", "state"}),
		PendingSendDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "secs2hsms",
			Name:      "pending_send_depth",
			Help:      "Number of sends awaiting a reply or timeout, per port.",
		}, []string{"port"}),
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "sends_total",
			Help:      "Sends completed, partitioned by terminal result.",
		}, []string{"port", "result"}),
		T3TimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "t3_timeouts_total",
			Help:      "Reply-timeout expiries (T3), per port.",
		}, []string{"port"}),
		T6TimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "t6_timeouts_total",
			Help:      "Control-transaction-timeout expiries (T6), per port.",
		}, []string{"port"}),
		T7TimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "t7_timeouts_total",
			Help:      "Not-selected-timeout expiries (T7), per port.",
		}, []string{"port"}),
		LinktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "linktests_total",
			Help:      "Linktest request/response pairs observed, per port.",
		}, []string{"port", "direction"}),
		SystemBytesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "system_bytes_issued_total",
			Help:      "SystemBytes values issued by the Manager's counter.",
		}),
		DataIDIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secs2hsms",
			Name:      "dataid_issued_total",
			Help:      "DATAID values issued by the Manager's counter.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionState,
			m.PendingSendDepth,
			m.SendsTotal,
			m.T3TimeoutsTotal,
			m.T6TimeoutsTotal,
			m.T7TimeoutsTotal,
			m.LinktestsTotal,
			m.SystemBytesIssued,
			m.DataIDIssued,
		)
	}
	return m
}

// Noop returns a Metrics bundle backed by collectors that are never
// registered with any registry; it is for tests and callers that do not
// want Prometheus wiring.
func Noop() *Metrics {
	return New(nil)
}
