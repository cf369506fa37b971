// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts TCP packets accepted by the reassembly engine
	PacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpflow_packets_total",
			Help: "Total number of TCP packets fed into the reassembly engine",
		},
	)

	// ActiveConnections tracks connections currently being reassembled
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcpflow_active_connections",
			Help: "Number of connections currently tracked and not yet closed",
		},
	)

	// ConnectionsClosedTotal counts closed connections by close reason
	ConnectionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpflow_connections_closed_total",
			Help: "Total number of connections closed, by reason",
		},
		[]string{"reason"},
	)

	// ConnectionsPurgedTotal counts connections removed by the purge pass
	ConnectionsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpflow_connections_purged_total",
			Help: "Total number of closed connections purged from memory",
		},
	)

	// StreamBytesTotal counts bytes delivered to message callbacks,
	// synthetic gap markers included
	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpflow_stream_bytes_total",
			Help: "Total number of reassembled stream bytes delivered to callbacks",
		},
	)

	// PendingFragments tracks queued out-of-order fragments awaiting
	// their predecessor bytes
	PendingFragments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcpflow_pending_fragments",
			Help: "Number of out-of-order TCP fragments currently queued",
		},
	)
)
