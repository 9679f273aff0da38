// Package metrics exposes a handful of OpenTelemetry counters for the
// core's own observable work (task lifecycle, installs served, preview
// hits), backed by a Prometheus exporter, matching the ambient shape the
// teacher server uses for its own access/download counters.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the counters the core increments as it runs tasks,
// installs packages, and serves preview requests.
type Metrics struct {
	TasksStarted         metric.Int64Counter
	TasksCanceled        metric.Int64Counter
	InstallPackagesTotal metric.Int64Counter
	InstallBytesTotal    metric.Int64Counter
	PreviewRequestsTotal metric.Int64Counter
}

// New builds a Metrics backed by a fresh Prometheus-exporting
// MeterProvider, which is also installed as the process-global provider.
func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/icode")

	counters := []struct {
		name string
		desc string
		dst  *metric.Int64Counter
	}{
		{"tasks_started", "Total number of exec tasks started", &m.TasksStarted},
		{"tasks_canceled", "Total number of exec tasks canceled via kill", &m.TasksCanceled},
		{"install_packages_total", "Total number of packages installed", &m.InstallPackagesTotal},
		{"install_bytes_total", "Total bytes of tarball downloaded during install", &m.InstallBytesTotal},
		{"preview_requests_total", "Total number of requests served by the preview server", &m.PreviewRequestsTotal},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return Metrics{}, fmt.Errorf("create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// ListenAndServe serves the Prometheus text exposition format at
// "/metrics" on addr. It blocks until the listener fails.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncTaskStarted(ctx context.Context, kind string) {
	if m.TasksStarted == nil {
		return
	}
	m.TasksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m Metrics) IncTaskCanceled(ctx context.Context, kind string) {
	if m.TasksCanceled == nil {
		return
	}
	m.TasksCanceled.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m Metrics) IncInstall(ctx context.Context, packages int64, bytes int64) {
	if m.InstallPackagesTotal == nil || m.InstallBytesTotal == nil {
		return
	}
	m.InstallPackagesTotal.Add(ctx, packages)
	m.InstallBytesTotal.Add(ctx, bytes)
}

func (m Metrics) IncPreviewRequest(ctx context.Context, path string) {
	if m.PreviewRequestsTotal == nil {
		return
	}
	m.PreviewRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}
