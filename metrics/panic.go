// Package metrics has prometheus metrics shared between packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPanic = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mstore_panic_total",
		Help: "Number of unhandled panics, by package.",
	},
	[]string{
		"pkg",
	},
)

// Packages for use as label with PanicInc.
const (
	Store     = "store"
	Boltstore = "boltstore"
	Memstore  = "memstore"
)

func PanicInc(pkg string) {
	metricPanic.WithLabelValues(pkg).Inc()
}
