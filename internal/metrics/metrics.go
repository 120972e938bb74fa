// Package metrics holds the Prometheus collectors of the tracker. Collectors
// are registered on the default registry at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "delivery_tracker"

// CarrierCallsTotal counts carrier UpdateTracking calls.
// Labels:
//   - carrier: registry key
//   - result: "ok" or the error category
var CarrierCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "carrier_calls_total",
		Help:      "Total number of carrier tracking calls, by carrier and result.",
	},
	[]string{"carrier", "result"},
)

// RefreshSkippedTotal counts deliveries a refresh did not fetch.
// Label:
//   - reason: "archived", "debug", "unknown_carrier", "fresh"
var RefreshSkippedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_skipped_total",
		Help:      "Total number of deliveries skipped during refresh, by reason.",
	},
	[]string{"reason"},
)

// RefreshErrorsTotal counts categorized refresh failures.
var RefreshErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_errors_total",
		Help:      "Total number of delivery refresh failures, by error category.",
	},
	[]string{"category"},
)

var RefreshDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of one refresh invocation.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ActiveDeliveries is the number of non-archived deliveries seen by the last
// scheduled refresh.
var ActiveDeliveries = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_deliveries",
		Help:      "Number of active deliveries at the last refresh.",
	},
)

// NotificationsTotal counts failure notifications.
// Label:
//   - sink: "log", "broker", "inbox"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of refresh failure notifications, by sink.",
	},
	[]string{"sink"},
)
