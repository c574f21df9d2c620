package types

import (
	"context"
	"testing"
)

// mockLogger implements the Logger interface for testing purposes.
type mockLogger struct {
	messages []string
}

func (m *mockLogger) Info(msg string, args ...any)  { m.messages = append(m.messages, "info:"+msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.messages = append(m.messages, "error:"+msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.messages = append(m.messages, "warn:"+msg) }
func (m *mockLogger) With(args ...any) Logger       { return m }

func TestWithRequestID_GetRequestID(t *testing.T) {
	t.Run("round-trip stores and retrieves the request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-abc-123")
		if got := GetRequestID(ctx); got != "req-abc-123" {
			t.Errorf("GetRequestID = %q, want %q", got, "req-abc-123")
		}
	})

	t.Run("missing request ID yields empty string", func(t *testing.T) {
		if got := GetRequestID(context.Background()); got != "" {
			t.Errorf("GetRequestID on empty context = %q, want empty", got)
		}
	})

	t.Run("overwrite replaces previous value", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "first")
		ctx = WithRequestID(ctx, "second")
		if got := GetRequestID(ctx); got != "second" {
			t.Errorf("GetRequestID = %q, want %q", got, "second")
		}
	})
}

func TestWithTraceID_GetTraceID(t *testing.T) {
	t.Run("round-trip stores and retrieves the trace ID", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-xyz")
		if got := GetTraceID(ctx); got != "trace-xyz" {
			t.Errorf("GetTraceID = %q, want %q", got, "trace-xyz")
		}
	})

	t.Run("trace and request IDs do not collide", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithTraceID(ctx, "trace-1")
		if GetRequestID(ctx) != "req-1" || GetTraceID(ctx) != "trace-1" {
			t.Errorf("context keys collided: request=%q trace=%q",
				GetRequestID(ctx), GetTraceID(ctx))
		}
	})

	t.Run("missing trace ID yields empty string", func(t *testing.T) {
		if got := GetTraceID(context.Background()); got != "" {
			t.Errorf("GetTraceID on empty context = %q, want empty", got)
		}
	})
}

func TestWithLogger_LoggerFromContext(t *testing.T) {
	t.Run("round-trip stores and retrieves the logger", func(t *testing.T) {
		logger := &mockLogger{}
		ctx := WithLogger(context.Background(), logger)
		got := LoggerFromContext(ctx)
		if got == nil {
			t.Fatal("LoggerFromContext returned nil for a context with a logger")
		}
		got.Info("hello")
		if len(logger.messages) != 1 || logger.messages[0] != "info:hello" {
			t.Errorf("retrieved logger did not delegate: %v", logger.messages)
		}
	})

	t.Run("missing logger yields nil", func(t *testing.T) {
		if got := LoggerFromContext(context.Background()); got != nil {
			t.Errorf("LoggerFromContext on empty context = %v, want nil", got)
		}
	})
}
