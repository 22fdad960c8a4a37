package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notificationgarden"

var (
	sendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_total",
			Help:      "Number of notification send attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Provider send duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	preferenceDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "preference_denied_total",
			Help:      "Number of notifications blocked by user preferences",
		},
		[]string{"type", "channel"},
	)

	// StatusCount tracks how many notifications currently sit in each
	// status. Updated by a background loop in the application shell.
	StatusCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "status_count",
			Help:      "Number of notifications by status",
		},
		[]string{"status"},
	)
)
