package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/openbeamline/beamwalk/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "beamwalk"
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Start metrics server (non-blocking)
	if err := tel.StartMetricsServer(); err != nil {
		panic(err)
	}

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("engine")

	// Add context fields
	logger = logger.WithFields(map[string]interface{}{
		"session_id": "sess-123",
		"device":     "m1h",
	})

	// Log at different levels
	logger.Debug("Starting actuator move")
	logger.Info("Move settled")
	logger.Warn("Beam signal below floor")

	// Log with error
	err := fmt.Errorf("motion timeout")
	logger.WithError(err).Error("Failed to settle actuator")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a session span
	ctx, span := tel.Tracer.Start(ctx, "session.execute")
	defer span.End()

	// Add attributes
	span.SetAttributes(
		attribute.String("session.id", "sess-789"),
		attribute.String("plan.name", "homs_align"),
	)

	// Nested command span
	ctx, childSpan := tel.Tracer.StartCommandSpan(ctx, "sess-789", "set_actuator", "m1h")
	defer childSpan.End()

	// Simulate work
	time.Sleep(10 * time.Millisecond)

	// Record success
	telemetry.RecordSuccess(childSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Record session metrics
	tel.Metrics.RecordSessionStarted("homs_align")

	// Simulate session execution
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordSessionCompleted("succeeded", duration)

	// Record command metrics
	tel.Metrics.RecordCommand("set_actuator", "m1h", "succeeded", 25*time.Millisecond)

	// Record branch metrics
	tel.Metrics.RecordBranchTaken("0")

	// Record suspension metrics
	tel.Metrics.RecordSuspension("beam_energy_floor", 2*time.Second)

	// Record error metrics
	tel.Metrics.RecordError("recovery", "RECOVERY_TIMEOUT")

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_eventPublishing demonstrates event publishing and subscription.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false // Synchronous for example

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe to events
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
	}, nil) // No filter, receive all events

	// Publish events
	tel.Events.PublishSessionStarted("sess-123", "homs_align")
	tel.Events.PublishBranchTaken("sess-123", 0, "m1h")
	tel.Events.PublishSessionCompleted("sess-123", "succeeded", 25*time.Millisecond)

	// Output varies due to async nature, no output specified
}

// Example_sessionInstrumentation demonstrates instrumenting a complete session.
func Example_sessionInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start session context
	sessionID := "sess-123"
	ctx = telemetry.WithSessionContext(ctx, sessionID, "homs_align")

	// Execute a command (simulated)
	err := telemetry.RecordCommandOperation(ctx, sessionID, "set_actuator", "m1h",
		func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})

	// End session context
	telemetry.EndSessionContext(ctx, sessionID, "succeeded", err)

	fmt.Println("Session instrumentation complete")
	// Output: Session instrumentation complete
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe with level filter (only warnings and errors)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	// Subscribe with type filter (only suspension events)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Suspension: %s\n", event.Message)
	}, telemetry.FilterByType(telemetry.EventTypeSuspended))

	// Publish various events
	tel.Events.PublishSessionStarted("sess-123", "homs_align")          // Info - filtered by level filter
	tel.Events.PublishSuspended("sess-123", []string{"beam_rate_floor"}) // Warning - passes level filter
	tel.Events.PublishSessionFailed("sess-123", "motion fault")          // Error - passes level filter

	// Output varies, no output specified
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	// Customize for your environment
	cfg.ServiceName = "beamwalk"
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "production"

	// Configure OTLP exporter
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1 // 10% sampling
	cfg.Tracing.Insecure = false   // Use TLS in production

	// Configure metrics
	cfg.Metrics.ListenAddress = ":9090"
	cfg.Metrics.Namespace = "beamwalk"

	// Configure events
	cfg.Events.BufferSize = 10000
	cfg.Events.FlushInterval = 5 * time.Second

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}

// Example_errorRecording demonstrates error recording with proper classification.
func Example_errorRecording() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a span
	ctx, span := tel.Tracer.Start(ctx, "recovery.sweep")
	defer span.End()

	// Simulate an error
	err := fmt.Errorf("beam not recovered within 120s")

	if err != nil {
		// Record error on span
		telemetry.RecordError(span, err)

		// Record error metric with classification
		tel.Metrics.RecordError("recovery", "RECOVERY_TIMEOUT")

		// Log error
		logger := telemetry.FromContext(ctx)
		logger.WithError(err).Error("Recovery sweep failed")
	}

	fmt.Println("Error recording complete")
	// Output: Error recording complete
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific loggers
	engineLogger := tel.Logger.NewComponentLogger("engine")
	branchLogger := tel.Logger.NewComponentLogger("branch")
	suspendLogger := tel.Logger.NewComponentLogger("suspend")

	engineLogger.Info("Dispatcher initialized")
	branchLogger.Info("Recovery branches registered")
	suspendLogger.Info("Suspend conditions installed")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
