package telemetry_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"go.pilab.hu/recovery/internal/telemetry"
)

func TestInitMeterProvider(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := telemetry.InitMeterProvider(reg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, telemetry.Shutdown(context.Background(), mp)) }()

	counter, err := otel.Meter("telemetry_test").Int64Counter("sample_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sample_events_total")
}

func TestShutdownNil(t *testing.T) {
	assert.NoError(t, telemetry.Shutdown(context.Background(), nil))
}
