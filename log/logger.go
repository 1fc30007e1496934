package log

import "context"

// Fields is a set of structured key/value pairs attached to a log line.
type Fields = map[string]interface{}

// Logger is the structured logger used by the session manager and its adapters.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	With(fields Fields) Logger // Returns a new logger with added structured fields
}
