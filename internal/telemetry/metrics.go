// Package telemetry exposes Prometheus metrics for the automation core.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdeck_checks_total",
		Help: "Login-status checks completed, by service and resulting status",
	}, []string{"service", "status"})

	CheckSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdeck_check_skips_total",
		Help: "Monitoring checks skipped before any DOM work, by reason",
	}, []string{"reason"})

	CheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatdeck_check_duration_seconds",
		Help:    "Wall time of one login-status check",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdeck_sends_total",
		Help: "Send requests completed, by channel and outcome",
	}, []string{"channel", "outcome"})

	AttachmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdeck_attachments_total",
		Help: "Attachment uploads attempted, by channel and outcome",
	}, []string{"channel", "outcome"})

	StatusEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdeck_status_events_total",
		Help: "Status-change events emitted to the notification bridges",
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ChecksTotal,
			CheckSkips,
			CheckDuration,
			SendsTotal,
			AttachmentsTotal,
			StatusEvents,
		)
	})
	return promhttp.Handler()
}
