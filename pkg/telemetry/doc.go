// Package telemetry provides observability instrumentation for beamwalk.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging alignment sessions.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "beamwalk"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithSessionID("sess-123").WithDevice("m1h")
//	logger.Info("Starting actuator sweep")
//	logger.WithError(err).Error("Sweep failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into session flow and per-command latency:
//
//	ctx, span := tel.Tracer.Start(ctx, "session.execute")
//	defer span.End()
//
//	span.SetAttributes(
//	    attribute.String("session.id", sessionID),
//	    attribute.String("plan.name", "homs_align"),
//	)
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track session behavior and device performance:
//
//	tel.Metrics.RecordSessionStarted("homs_align")
//	tel.Metrics.RecordSessionCompleted("succeeded", duration)
//	tel.Metrics.RecordCommand("set_actuator", "m1h", "succeeded", duration)
//	tel.Metrics.RecordBranchTaken("0")
//	tel.Metrics.RecordSuspension("beam_energy_floor", paused)
//	tel.Metrics.RecordError("recovery", "RECOVERY_TIMEOUT")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishSessionStarted(sessionID, plan)
//	tel.Events.PublishBranchTaken(sessionID, 0, "m1h")
//	tel.Events.PublishSuspended(sessionID, violated)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterBySessionID, FilterByDevice
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "config.load",
//	    attribute.String("config.path", path))
//	defer ic.End(err)
//
//	// Session context
//	ctx = telemetry.WithSessionContext(ctx, sessionID, plan)
//	defer telemetry.EndSessionContext(ctx, sessionID, status, err)
//
//	// Command execution
//	err := telemetry.RecordCommandOperation(ctx, sessionID, "set_actuator", "m1h",
//	    func(ctx context.Context) error {
//	        return actuator.Move(ctx, target, timeout)
//	    })
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - beamwalk_sessions_started_total{plan}
//   - beamwalk_sessions_completed_total{status}
//   - beamwalk_session_duration_seconds{status}
//   - beamwalk_commands_executed_total{kind,status}
//   - beamwalk_command_duration_seconds{kind,device}
//   - beamwalk_branches_taken_total{branch}
//   - beamwalk_suspension_trips_total{condition}
//   - beamwalk_suspended_seconds{condition}
//   - beamwalk_recovery_timeouts_total{device}
//   - beamwalk_errors_by_class_total{class}
//   - beamwalk_active_sessions
package telemetry
