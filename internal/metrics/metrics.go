package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tremolo_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tremolo_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Moderation event counters (incremented on occurrence)
var (
	ReportsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tremolo_reports_submitted_total",
		Help: "Total number of reports submitted, by reason",
	}, []string{"reason"})

	ActionsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tremolo_moderation_actions_total",
		Help: "Total number of moderation actions taken, by type",
	}, []string{"action_type"})

	ActionsReversed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tremolo_moderation_reversals_total",
		Help: "Total number of moderation actions reversed, by type",
	}, []string{"action_type"})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tremolo_notification_failures_total",
		Help: "Total number of best-effort notification deliveries that failed",
	})

	SecurityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tremolo_security_events_total",
		Help: "Total number of security events recorded, by type",
	}, []string{"event_type"})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 3 || segments[0] != "api" {
		return path
	}

	switch segments[1] {
	case "reports":
		if len(segments) == 3 {
			return "/api/reports/:id"
		}
	case "actions":
		if len(segments) == 3 {
			return "/api/actions/:id"
		}
		if len(segments) == 4 {
			return "/api/actions/:id/" + segments[3]
		}
	case "users":
		if len(segments) == 4 {
			return "/api/users/:id/" + segments[3]
		}
		if len(segments) == 5 {
			return "/api/users/:id/" + segments[3] + "/:key"
		}
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}

// Queue gauges (updated periodically by the collector)
var (
	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tremolo_moderation_queue_pending",
		Help: "Number of reports currently pending triage",
	})

	QueueByPriority = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tremolo_moderation_queue_by_priority",
		Help: "Number of pending reports by priority tier",
	}, []string{"priority"})

	ActiveRestrictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tremolo_active_restrictions",
		Help: "Number of currently active restrictions",
	})

	SuspendedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tremolo_suspended_users",
		Help: "Number of currently suspended users",
	})
)
