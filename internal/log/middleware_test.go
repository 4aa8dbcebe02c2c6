package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestMiddlewarePutsLoggerInContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, "http")

	var got *Logger
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil {
		t.Fatal("no logger in request context")
	}
	if got.Component() != "http" {
		t.Fatalf("expected component http, got %q", got.Component())
	}
}

func TestRequestIDMiddlewareAttachesID(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, "http")

	handler := Middleware(logger)(
		RequestIDMiddleware(func(r *http.Request) string {
			return r.Header.Get("X-Request-ID")
		})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("handled")
		})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_abc123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "request_id=req_abc123") {
		t.Fatalf("log line missing request id: %s", buf.String())
	}
}

func TestFromContextFallback(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected fallback logger")
	}
	if logger.Component() != "unknown" {
		t.Fatalf("expected component unknown, got %q", logger.Component())
	}
}
