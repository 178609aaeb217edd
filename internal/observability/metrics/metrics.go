package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "carebot_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	syncRequests *prometheus.CounterVec
	syncLatency  *prometheus.HistogramVec

	commandIssued    *prometheus.CounterVec
	commandDelivered prometheus.Counter
	commandResults   *prometheus.CounterVec

	deviceEvents *prometheus.CounterVec

	patrolReports *prometheus.CounterVec

	notifications *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	robotsMarkedOffline prometheus.Counter
)

// Init registers metrics and, when db is set, the DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		syncRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_requests_total",
				Help: "Total robot sync requests by result",
			},
			[]string{"result"},
		)
		syncLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sync_latency_seconds",
				Help:    "Robot sync latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		commandIssued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_issued_total",
				Help: "Total issued commands by kind",
			},
			[]string{"kind"},
		)
		commandDelivered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_delivered_total",
				Help: "Total commands handed to robots on sync",
			},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total command status changes by status",
			},
			[]string{"status"},
		)

		deviceEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_events_total",
				Help: "Total processed device events by type and action",
			},
			[]string{"type", "action"},
		)

		patrolReports = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "patrol_reports_total",
				Help: "Total patrol reports by outcome",
			},
			[]string{"outcome"},
		)

		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total guardian notifications by kind and result",
			},
			[]string{"kind", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "patrol_export_total",
				Help: "Total patrol exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "patrol_export_latency_seconds",
				Help:    "Patrol export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		robotsMarkedOffline = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "robots_marked_offline_total",
				Help: "Total robots moved to DISCONNECTED by the liveness sweep",
			},
		)

		prometheus.MustRegister(
			syncRequests,
			syncLatency,
			commandIssued,
			commandDelivered,
			commandResults,
			deviceEvents,
			patrolReports,
			notifications,
			exportTotal,
			exportLatency,
			robotsMarkedOffline,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSync records sync request duration and result.
func ObserveSync(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if syncRequests != nil {
		syncRequests.WithLabelValues(result).Inc()
	}
	if syncLatency != nil {
		syncLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncCommandIssued increments the issued counter for kind.
func IncCommandIssued(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if commandIssued != nil {
		commandIssued.WithLabelValues(kind).Inc()
	}
}

// AddCommandsDelivered adds count drained commands.
func AddCommandsDelivered(count int) {
	if count <= 0 {
		return
	}
	if commandDelivered != nil {
		commandDelivered.Add(float64(count))
	}
}

// IncCommandResult increments the status change counter.
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// IncDeviceEvent counts one processed event.
func IncDeviceEvent(eventType, action string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if action == "" {
		action = "none"
	}
	if deviceEvents != nil {
		deviceEvents.WithLabelValues(eventType, action).Inc()
	}
}

// IncPatrolReport counts a patrol report by outcome (stored, replayed, rejected).
func IncPatrolReport(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if patrolReports != nil {
		patrolReports.WithLabelValues(outcome).Inc()
	}
}

// IncNotification counts a notification attempt.
func IncNotification(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifications != nil {
		notifications.WithLabelValues(kind, result).Inc()
	}
}

// ObservePatrolExport records export latency and result.
func ObservePatrolExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddRobotsMarkedOffline adds count sweep transitions.
func AddRobotsMarkedOffline(count int) {
	if count <= 0 {
		return
	}
	if robotsMarkedOffline != nil {
		robotsMarkedOffline.Add(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
