// Package audit writes one JSON line per account-level action.
package audit

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Actions recorded by the identity provider.
const (
	ActionSignIn        = "sign_in"
	ActionCreateAccount = "create_account"
	ActionRevokeSession = "revoke_session"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`     // User ID or email
	Provider  string    `json:"provider,omitempty"` // google, apple or password
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Logger writes audit events. A nil *Logger discards them.
type Logger struct {
	out zerolog.Logger
	now func() time.Time
}

// New returns a Logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{
		out: zerolog.New(w),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Log records an audit event.
func (l *Logger) Log(ctx context.Context, action, user, provider string, err error) {
	if l == nil {
		return
	}
	event := Event{
		Timestamp: l.now(),
		Action:    action,
		User:      user,
		Provider:  provider,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
	}

	e := l.out.Log().
		Time("timestamp", event.Timestamp).
		Str("action", event.Action).
		Bool("success", event.Success)
	if event.User != "" {
		e = e.Str("user", event.User)
	}
	if event.Provider != "" {
		e = e.Str("provider", event.Provider)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if event.TraceID != "" {
		e = e.Str("trace_id", event.TraceID)
	}
	e.Msg("")

	log.Debug().Str("action", action).Bool("success", event.Success).Msg("Audit event recorded")
}
