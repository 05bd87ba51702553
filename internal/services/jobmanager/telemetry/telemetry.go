// Package telemetry provides OpenTelemetry tracing and Prometheus metrics
// for the job queue worker loop.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "vire-queue"

// Metrics holds the Prometheus instruments emitted for every processed job.
type Metrics struct {
	JobsProcessed  *prometheus.CounterVec
	JobsFailed     *prometheus.CounterVec
	JobsRetried    *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	ActiveJobs     prometheus.Gauge
	QueueDepth     prometheus.Gauge
	WorkerRestarts prometheus.Counter
}

// Provider wraps the tracer, its SDK-backed provider, and metrics shared by
// the worker runtime.
type Provider struct {
	Tracer         trace.Tracer
	Metrics        *Metrics
	tracerProvider *sdktrace.TracerProvider
}

// NewProvider builds a Provider and registers its tracer provider as the
// process-wide default. otlpEndpoint is a bare host:port; empty disables
// span export (spans are still created and sampled, just dropped on End).
// Construct it once per process: promauto registers the metrics against the
// default registry, and a second call panics on the duplicate names.
func NewProvider(otlpEndpoint string) *Provider {
	tp := newTracerProvider(otlpEndpoint)
	otel.SetTracerProvider(tp)
	return &Provider{
		Tracer:         tp.Tracer(serviceName),
		Metrics:        newMetrics(),
		tracerProvider: tp,
	}
}

// newTracerProvider builds the SDK tracer provider: always-sample with a
// vire-queue resource, and an OTLP/HTTP batch exporter when endpoint is set.
func newTracerProvider(endpoint string) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	}
	if endpoint != "" {
		exporter, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithTimeout(10*time.Second),
		)
		if err == nil {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
	}
	return sdktrace.NewTracerProvider(opts...)
}

// Shutdown flushes and closes the span exporter, if one was configured.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tracerProvider.Shutdown(ctx)
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vire_queue_jobs_processed_total",
			Help: "Total jobs that completed successfully, by job type.",
		}, []string{"job_type"}),
		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vire_queue_jobs_failed_total",
			Help: "Total jobs that failed, by job type and error category.",
		}, []string{"job_type", "category"}),
		JobsRetried: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vire_queue_jobs_retried_total",
			Help: "Total jobs rescheduled for a retry, by job type.",
		}, []string{"job_type"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vire_queue_job_duration_seconds",
			Help:    "Time to execute a single job, by job type.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job_type"}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vire_queue_active_jobs",
			Help: "Jobs currently being processed.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vire_queue_depth",
			Help: "Ready jobs observed on the most recent acquire round.",
		}),
		WorkerRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vire_queue_worker_restarts_total",
			Help: "Total times the supervisor relaunched a crashed worker loop.",
		}),
	}
}

// Handler returns the Prometheus scrape handler for /metrics.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

// StartSpan starts a span named name under the queue tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordJobSuccess records a completed job's duration and increments its
// processed counter.
func (p *Provider) RecordJobSuccess(jobType string, duration time.Duration) {
	p.Metrics.JobsProcessed.WithLabelValues(jobType).Inc()
	p.Metrics.JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// RecordJobFailure records a failed job's duration, failure category, and
// whether it was rescheduled for retry.
func (p *Provider) RecordJobFailure(jobType, category string, duration time.Duration, retried bool) {
	p.Metrics.JobsFailed.WithLabelValues(jobType, category).Inc()
	p.Metrics.JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
	if retried {
		p.Metrics.JobsRetried.WithLabelValues(jobType).Inc()
	}
}

// SetActiveJobs reports the worker pool's current in-flight count.
func (p *Provider) SetActiveJobs(n int) {
	p.Metrics.ActiveJobs.Set(float64(n))
}

// SetQueueDepth reports the number of ready jobs seen on the latest acquire
// round.
func (p *Provider) SetQueueDepth(n int) {
	p.Metrics.QueueDepth.Set(float64(n))
}

// RecordWorkerRestart increments the supervisor restart counter.
func (p *Provider) RecordWorkerRestart() {
	p.Metrics.WorkerRestarts.Inc()
}

// spanStatus maps a handler error to the span status recorded for it.
func spanStatus(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	spanStatus(span, err)
	span.End()
}
