// Package telemetry bridges OpenTelemetry metrics into the Prometheus registry
// served by the inspector.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider initializes the OpenTelemetry meter provider with a
// Prometheus exporter registered on reg and installs it globally, so
// instrumented libraries (mongo, echo) report into the same registry.
func InitMeterProvider(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Debug().Msg("OpenTelemetry MeterProvider initialized with Prometheus exporter")
	return mp, nil
}

// Shutdown flushes and stops the meter provider.
func Shutdown(ctx context.Context, mp *metric.MeterProvider) error {
	if mp == nil {
		return nil
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down OpenTelemetry MeterProvider")
		return err
	}
	return nil
}
