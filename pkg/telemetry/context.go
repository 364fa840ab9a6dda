package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", operation)

	// Add trace context to logger if available
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithSessionContext creates a context enriched with session-specific telemetry.
func WithSessionContext(ctx context.Context, sessionID, plan string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start session span
	spanCtx, span := tel.Tracer.StartSessionSpan(ctx, sessionID)

	// Create session-specific logger
	logger := tel.Logger.WithSessionID(sessionID).WithPlan(plan)
	spanCtx = logger.WithContext(spanCtx)

	// Record session started metric
	tel.Metrics.RecordSessionStarted(plan)

	// Publish session started event
	_ = tel.Events.PublishSessionStarted(sessionID, plan)

	// Store the span in context for later retrieval
	spanCtx = context.WithValue(spanCtx, sessionSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, sessionTimerKey{}, NewTimer())

	return spanCtx
}

// sessionSpanKey is the context key for session spans.
type sessionSpanKey struct{}

// sessionTimerKey is the context key for session timers.
type sessionTimerKey struct{}

// EndSessionContext completes the session context, recording metrics and events.
func EndSessionContext(ctx context.Context, sessionID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the session span from context
	if span, ok := ctx.Value(sessionSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrSessionStatus.String(status))
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(sessionTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	tel.Metrics.RecordSessionCompleted(status, duration)

	// Publish events
	if err != nil {
		_ = tel.Events.PublishSessionFailed(sessionID, err.Error())
	} else {
		_ = tel.Events.PublishSessionCompleted(sessionID, status, duration)
	}
}

// RecordCommandOperation records a command execution with metrics and tracing.
func RecordCommandOperation(ctx context.Context, sessionID, kind, device string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)

	// Start span
	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartCommandSpan(ctx, sessionID, kind, device)
		defer span.End()
	}

	// Start timer
	timer := NewTimer()

	// Execute operation
	err := fn(ctx)

	// Record metrics
	if tel != nil {
		duration := timer.Duration()
		status := "succeeded"
		if err != nil {
			status = "failed"
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		tel.Metrics.RecordCommand(kind, device, status, duration)
	}

	return err
}
