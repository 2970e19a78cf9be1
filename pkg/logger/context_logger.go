package logger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const clientIDKey ctxKey = iota

// WithClientID stamps the client identity on a context so downstream log
// lines can be correlated with the websocket session.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ContextLogger enriches log lines with whatever correlation the context
// carries: the otel trace id when tracing is on, and the client identity
// when a handler stamped one.
type ContextLogger struct {
	base *zap.SugaredLogger
}

func NewContextLogger(base *zap.SugaredLogger) *ContextLogger {
	return &ContextLogger{base: base}
}

// With returns the base logger extended with the context's correlation
// fields. Returns the base unchanged when the context carries none.
func (cl *ContextLogger) With(ctx context.Context) *zap.SugaredLogger {
	out := cl.base

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = out.With("trace_id", sc.TraceID().String())
	}
	if id, ok := ctx.Value(clientIDKey).(string); ok && id != "" {
		out = out.With("client_id", id)
	}
	return out
}

// LogRequest writes the access log line for one HTTP request.
func (cl *ContextLogger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	cl.With(ctx).Infow("http request",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
}
