package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMailboxOp = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mstore_mailbox_operations_total",
			Help: "Mailbox operations, by operation and result.",
		},
		[]string{
			"op",     // open, check, sync, close, purge
			"result", // ok, error
		},
	)

	metricNotify = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mstore_mailbox_events_total",
			Help: "Mailbox change events delivered to listeners, by event kind.",
		},
		[]string{
			"kind",
		},
	)
)

// MailboxOpInc increments the counter for a mailbox operation. Result must be
// "ok" or "error".
func MailboxOpInc(op, result string) {
	metricMailboxOp.WithLabelValues(op, result).Inc()
}

// NotifyInc increments the delivered-events counter for an event kind.
func NotifyInc(kind string) {
	metricNotify.WithLabelValues(kind).Inc()
}
