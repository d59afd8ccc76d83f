package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts resolved scans and manual check-ins by outcome.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_scans_total",
		Help: "Scans and manual check-ins by outcome.",
	}, []string{"outcome"})

	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_rollbacks_total",
		Help: "Optimistic changes reverted after a failed remote call.",
	})

	RemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkin_remote_seconds",
		Help:    "Latency of calls to the attendance service.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "result"})

	// Transitions counts server-side transitions by action and result.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_transitions_total",
		Help: "Attendance transitions applied or rejected by the service.",
	}, []string{"action", "result"})

	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_registrations_total",
		Help: "Attendees registered.",
	})

	TicketFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_ticket_failures_total",
		Help: "Tickets that could not be rendered, uploaded or queued.",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkin_cache_attendees",
		Help: "Attendees held in the station cache.",
	})
)

// ObserveRemote records one remote call that started at start.
func ObserveRemote(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RemoteLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
