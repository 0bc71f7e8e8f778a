// Package observability wires OpenTelemetry metrics to a Prometheus scrape endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// Each call gets its own registry, so the handler only exposes this provider's metrics.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

// UploadState is what the upload gauges read at scrape time.
type UploadState interface {
	IncompleteJobIDs() []string
	Connected() bool
}

// RegisterUploadGauges exposes the number of unfinished uploads and the
// event stream state as gauges evaluated on every scrape.
func RegisterUploadGauges(state UploadState) error {
	meter := otel.Meter("github.com/aicsgithub/aics-file-upload-app-sub003/internal/observability")

	_, err := meter.Int64ObservableGauge("upload_jobs_incomplete",
		metric.WithDescription("Upload jobs that have not reached a terminal status"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(len(state.IncompleteJobIDs())))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("register incomplete jobs gauge: %w", err)
	}

	_, err = meter.Int64ObservableGauge("upload_stream_connected",
		metric.WithDescription("1 while the job event stream is connected"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			if state.Connected() {
				obs.Observe(1)
			} else {
				obs.Observe(0)
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("register stream gauge: %w", err)
	}
	return nil
}
