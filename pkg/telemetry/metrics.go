package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for beamwalk.
type Metrics struct {
	config MetricsConfig

	// Session metrics
	sessionsStarted   *prometheus.CounterVec
	sessionsCompleted *prometheus.CounterVec
	sessionDuration   *prometheus.HistogramVec

	// Command metrics
	commandsExecuted *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec

	// Branch metrics
	branchesTaken  *prometheus.CounterVec
	branchFailures *prometheus.CounterVec

	// Suspension metrics
	suspensionTrips  *prometheus.CounterVec
	suspendedSeconds *prometheus.HistogramVec

	// Recovery metrics
	recoveryAttempts *prometheus.CounterVec
	recoveryTimeouts *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeSessions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Session metrics
		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of alignment sessions started",
			},
			[]string{"plan"},
		),
		sessionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Total number of alignment sessions completed",
			},
			[]string{"status"},
		),
		sessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of alignment sessions in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Command metrics
		commandsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_executed_total",
				Help:      "Total number of plan commands executed",
			},
			[]string{"kind", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of plan command execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "device"},
		),

		// Branch metrics
		branchesTaken: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "branches_taken_total",
				Help:      "Total number of recovery branches taken",
			},
			[]string{"branch"},
		),
		branchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "branch_failures_total",
				Help:      "Total number of recovery branches that failed",
			},
			[]string{"branch"},
		),

		// Suspension metrics
		suspensionTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suspension_trips_total",
				Help:      "Total number of suspend condition trips",
			},
			[]string{"condition"},
		),
		suspendedSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "suspended_seconds",
				Help:      "Time spent paused at checkpoints in seconds",
				Buckets:   buckets,
			},
			[]string{"condition"},
		),

		// Recovery metrics
		recoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_attempts_total",
				Help:      "Total number of beam recovery attempts",
			},
			[]string{"device"},
		),
		recoveryTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_timeouts_total",
				Help:      "Total number of recovery attempts that timed out",
			},
			[]string{"device"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by fault class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// System metrics
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of active alignment sessions",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.sessionsStarted,
		m.sessionsCompleted,
		m.sessionDuration,
		m.commandsExecuted,
		m.commandDuration,
		m.branchesTaken,
		m.branchFailures,
		m.suspensionTrips,
		m.suspendedSeconds,
		m.recoveryAttempts,
		m.recoveryTimeouts,
		m.errorsByClass,
		m.errorsByCode,
		m.activeSessions,
	)

	return m, nil
}

// Session Metrics

// RecordSessionStarted increments the counter for started sessions.
func (m *Metrics) RecordSessionStarted(plan string) {
	if m.sessionsStarted == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(plan).Inc()
	m.activeSessions.Inc()
}

// RecordSessionCompleted records a completed session with status and duration.
func (m *Metrics) RecordSessionCompleted(status string, duration time.Duration) {
	if m.sessionsCompleted == nil {
		return
	}
	m.sessionsCompleted.WithLabelValues(status).Inc()
	m.sessionDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeSessions.Dec()
}

// Command Metrics

// RecordCommand records the execution of one plan command.
func (m *Metrics) RecordCommand(kind, device, status string, duration time.Duration) {
	if m.commandsExecuted == nil {
		return
	}
	m.commandsExecuted.WithLabelValues(kind, status).Inc()
	m.commandDuration.WithLabelValues(kind, device).Observe(duration.Seconds())
}

// Branch Metrics

// RecordBranchTaken records a recovery branch selection.
func (m *Metrics) RecordBranchTaken(branch string) {
	if m.branchesTaken == nil {
		return
	}
	m.branchesTaken.WithLabelValues(branch).Inc()
}

// RecordBranchFailure records a recovery branch that failed.
func (m *Metrics) RecordBranchFailure(branch string) {
	if m.branchFailures == nil {
		return
	}
	m.branchFailures.WithLabelValues(branch).Inc()
}

// Suspension Metrics

// RecordSuspension records one suspend trip and the time spent paused.
func (m *Metrics) RecordSuspension(condition string, paused time.Duration) {
	if m.suspensionTrips == nil {
		return
	}
	m.suspensionTrips.WithLabelValues(condition).Inc()
	m.suspendedSeconds.WithLabelValues(condition).Observe(paused.Seconds())
}

// Recovery Metrics

// RecordRecoveryAttempt records one beam recovery attempt for a device.
func (m *Metrics) RecordRecoveryAttempt(device string) {
	if m.recoveryAttempts == nil {
		return
	}
	m.recoveryAttempts.WithLabelValues(device).Inc()
}

// RecordRecoveryTimeout records a recovery attempt that ran out of budget.
func (m *Metrics) RecordRecoveryTimeout(device string) {
	if m.recoveryTimeouts == nil {
		return
	}
	m.recoveryTimeouts.WithLabelValues(device).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// System Metrics

// SetActiveSessions sets the current number of active sessions.
func (m *Metrics) SetActiveSessions(count float64) {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
