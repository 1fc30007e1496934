package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.pilab.hu/recovery/internal/audit"
)

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := audit.New(&buf)

	l.Log(context.Background(), audit.ActionSignIn, "u123", "google", nil)

	var event audit.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, audit.ActionSignIn, event.Action)
	assert.Equal(t, "u123", event.User)
	assert.Equal(t, "google", event.Provider)
	assert.True(t, event.Success)
	assert.Empty(t, event.Error)
	assert.False(t, event.Timestamp.IsZero())
}

func TestLogger_LogFailureWithTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("audit_test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	audit.New(&buf).Log(ctx, audit.ActionCreateAccount, "grace@example.com", "password", errors.New("email address already in use"))

	var event audit.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.False(t, event.Success)
	assert.Equal(t, "email address already in use", event.Error)
	assert.Equal(t, span.SpanContext().TraceID().String(), event.TraceID)
}

func TestLogger_Nil(t *testing.T) {
	var l *audit.Logger
	assert.NotPanics(t, func() {
		l.Log(context.Background(), audit.ActionRevokeSession, "u1", "", nil)
	})
}
