package logger

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*ContextLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewContextLogger(zap.New(core).Sugar()), logs
}

func TestWith_NoCorrelation(t *testing.T) {
	cl, logs := observedLogger()

	cl.With(context.Background()).Infow("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if len(entries[0].Context) != 0 {
		t.Errorf("expected no fields, got %v", entries[0].Context)
	}
}

func TestWith_ClientID(t *testing.T) {
	cl, logs := observedLogger()

	ctx := WithClientID(context.Background(), "7")
	cl.With(ctx).Infow("hello")

	fields := logs.All()[0].ContextMap()
	if fields["client_id"] != "7" {
		t.Errorf("client_id = %v, want 7", fields["client_id"])
	}
}

func TestLogRequest(t *testing.T) {
	cl, logs := observedLogger()

	cl.LogRequest(context.Background(), "GET", "/api/clients", 200, 42*time.Millisecond)

	entry := logs.All()[0]
	if entry.Message != "http request" {
		t.Errorf("message = %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["method"] != "GET" || fields["path"] != "/api/clients" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["status"] != int64(200) {
		t.Errorf("status = %v", fields["status"])
	}
}
