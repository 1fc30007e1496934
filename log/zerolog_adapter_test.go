package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestZerologAdapter_FieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapterTo(&buf, zerolog.DebugLevel, false).With(Fields{"component": "session"})

	logger.Error(context.Background(), "sign-in failed", errors.New("boom"), Fields{"provider": "google"})

	line := decodeLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "sign-in failed", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "google", line["provider"])
	assert.Equal(t, "session", line["component"])
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapterTo(&buf, zerolog.WarnLevel, false)

	logger.Info(context.Background(), "ignored")
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), "kept")
	assert.NotZero(t, buf.Len())
}

func TestZerologAdapter_TraceInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapterTo(&buf, zerolog.DebugLevel, false)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Debug(ctx, "traced")

	line := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}
