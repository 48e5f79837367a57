package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/medflow/clinic-workflow/backend"

// Metrics holds all workflow engine metrics
type Metrics struct {
	TokensIssued        metric.Int64Counter
	TransitionsApplied  metric.Int64Counter
	TransitionConflicts metric.Int64Counter
	EventsPublished     metric.Int64Counter
	QueueRefreshes      metric.Int64Counter
	DBQueryDuration     metric.Float64Histogram
}

// Setup initializes OpenTelemetry tracing and metrics
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace provider
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, err
	}

	// Shutdown function
	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes workflow engine metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	tokensIssued, err := meter.Int64Counter(
		"workflow.tokens.issued",
		metric.WithDescription("Number of visit tokens issued"),
	)
	if err != nil {
		return nil, err
	}

	transitionsApplied, err := meter.Int64Counter(
		"workflow.transitions.applied",
		metric.WithDescription("Number of task status transitions applied"),
	)
	if err != nil {
		return nil, err
	}

	transitionConflicts, err := meter.Int64Counter(
		"workflow.transitions.conflicts",
		metric.WithDescription("Number of task transitions rejected by the conditional update"),
	)
	if err != nil {
		return nil, err
	}

	eventsPublished, err := meter.Int64Counter(
		"workflow.events.published",
		metric.WithDescription("Number of workflow events published to the bus"),
	)
	if err != nil {
		return nil, err
	}

	queueRefreshes, err := meter.Int64Counter(
		"workflow.queues.refreshes",
		metric.WithDescription("Number of queue recomputations triggered by notifications"),
	)
	if err != nil {
		return nil, err
	}

	dbQueryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		TokensIssued:        tokensIssued,
		TransitionsApplied:  transitionsApplied,
		TransitionConflicts: transitionConflicts,
		EventsPublished:     eventsPublished,
		QueueRefreshes:      queueRefreshes,
		DBQueryDuration:     dbQueryDuration,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordTransition records an applied task transition
func RecordTransition(ctx context.Context, metrics *Metrics, from, to string) {
	if metrics == nil {
		return
	}
	metrics.TransitionsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.status.from", from),
		attribute.String("workflow.status.to", to),
	))
}

// RecordConflict records a transition rejected by the conditional update
func RecordConflict(ctx context.Context, metrics *Metrics, observed string) {
	if metrics == nil {
		return
	}
	metrics.TransitionConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.status.observed", observed),
	))
}

// RecordDBMetric records a database operation metric
func RecordDBMetric(ctx context.Context, metrics *Metrics, operation string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.DBQueryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("db.operation", operation),
	))
}
