// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"net/http"

	"pdsa/internal/store"
	"pdsa/pkg/api"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create prometheus exporter")
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// StatusFunc returns the current campaign status; scheduler.Master.Status satisfies it.
type StatusFunc func() api.CampaignStatus

// Metrics records campaign instruments on the global meter provider. It
// implements the job recorders of the worker pool and the scheduler.
type Metrics struct {
	dispatched metric.Int64Counter
	completed  metric.Int64Counter
	screened   metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics registers the campaign instruments. Gauges are observed from
// status on every scrape.
func NewMetrics(status StatusFunc) (*Metrics, error) {
	meter := otel.Meter("pdsa-scheduler")
	m := &Metrics{}
	var err error

	if m.dispatched, err = meter.Int64Counter("pdsa.jobs.dispatched",
		metric.WithDescription("Jobs handed to workers"),
	); err != nil {
		return nil, errors.Wrap(err, "failed to create dispatched counter")
	}
	if m.completed, err = meter.Int64Counter("pdsa.jobs.completed",
		metric.WithDescription("Jobs finished, by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "failed to create completed counter")
	}
	if m.screened, err = meter.Int64Counter("pdsa.jobs.screened",
		metric.WithDescription("Jobs resolved by the analytical screening without simulation"),
	); err != nil {
		return nil, errors.Wrap(err, "failed to create screened counter")
	}
	if m.duration, err = meter.Float64Histogram("pdsa.job.duration",
		metric.WithDescription("Wall time of one job"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "failed to create duration histogram")
	}

	if status == nil {
		return m, nil
	}

	risk, err := meter.Float64ObservableGauge("pdsa.risk.total",
		metric.WithDescription("Current total risk estimate"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create risk gauge")
	}
	queue, err := meter.Int64ObservableGauge("pdsa.queue.depth",
		metric.WithDescription("Jobs queued for dispatch, including follow-up seeds"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create queue gauge")
	}
	unconverged, err := meter.Int64ObservableGauge("pdsa.contingencies.unconverged",
		metric.WithDescription("Contingencies still receiving samples"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create unconverged gauge")
	}

	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		s := status()
		obs.ObserveFloat64(risk, s.TotalRisk)
		obs.ObserveInt64(queue, int64(s.QueueDepth+s.FollowUps))
		obs.ObserveInt64(unconverged, int64(s.Unconverged+s.Waiting))
		return nil
	}, risk, queue, unconverged)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register status callback")
	}
	return m, nil
}

// JobsDispatched counts jobs assigned to workers.
func (m *Metrics) JobsDispatched(ctx context.Context, n int) {
	m.dispatched.Add(ctx, int64(n))
}

// JobFinished records the outcome and duration of a completed job.
func (m *Metrics) JobFinished(ctx context.Context, job *store.Job) {
	outcome := attribute.String("outcome", job.Result.Outcome())
	m.completed.Add(ctx, 1, metric.WithAttributes(outcome))
	m.duration.Record(ctx, job.Elapsed.Seconds(), metric.WithAttributes(outcome))
	if job.Result.Screened {
		m.screened.Add(ctx, 1)
	}
}
