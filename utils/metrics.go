package utils

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	// Outbound call Metrics
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Duration of calls to external services",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"service", "outcome"}, // geocoder; ok/error
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type", "reason"}, // database/cache/geocode/sweep, short reason
	)

	// Session Metrics
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Session state machine transitions",
		},
		[]string{"transition"}, // create, resume, activity, end, disconnect, idle, unidle, timeout, force_close
	)

	AccountedSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_accounted_seconds_total",
			Help: "Active seconds added to sessions",
		},
	)

	UpdateConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_update_conflicts_total",
			Help: "Conditional session updates rejected because the record changed underneath",
		},
		[]string{"source"},
	)

	LiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_sessions",
			Help: "Latest sessions per user by status, as of the last snapshot",
		},
		[]string{"status"},
	)

	// Background job Metrics
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Background sweep runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	SweepAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_affected_sessions_total",
			Help: "Sessions changed by background sweeps",
		},
		[]string{"job"},
	)

	// Presence Metrics
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_broadcasts_total",
			Help: "Presence snapshots published",
		},
		[]string{"trigger", "outcome"}, // tick/event, ok/error
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_stream_subscribers",
			Help: "Currently attached real-time subscribers",
		},
	)
)

// TrackDBOperation tracks database operation duration
func TrackDBOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(DBOperationDuration.WithLabelValues(operation, collection))
}

// TrackExternalCall records how long an outbound call took and whether it failed
func TrackExternalCall(service string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ExternalCallDuration.WithLabelValues(service, outcome).Observe(time.Since(start).Seconds())
}

// TrackError increments the error counter by type
func TrackError(errorType, reason string) {
	ErrorsTotal.WithLabelValues(errorType, reason).Inc()
}

func TrackTransition(transition string) {
	SessionTransitions.WithLabelValues(transition).Inc()
}

func TrackSweep(job string, affected int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SweepRuns.WithLabelValues(job, outcome).Inc()
	if affected > 0 {
		SweepAffected.WithLabelValues(job).Add(float64(affected))
	}
}
