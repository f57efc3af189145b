package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}).WithComponent(ComponentWorker)

	logger.Info("tick", FieldMonth, "2024-06")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentWorker || rec[FieldMonth] != "2024-06" {
		t.Errorf("record = %v", rec)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil")
	}
	logger := New(DefaultConfig())
	if got := FromContext(NewContext(context.Background(), logger)); got != logger {
		t.Error("FromContext did not return stored logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf}))
	req := httptest.NewRequest("GET", "/api/dashboard?month=2024-06", nil)

	sl.LogHTTPEnd(context.Background(), req, 503, 12, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("5xx should log at error: %s", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "export failed", errors.New("boom"), ComponentSheets, OpExport, nil)
	out := buf.String()
	if !strings.Contains(out, "error=boom") || !strings.Contains(out, "component=sheets") {
		t.Errorf("LogError output = %s", out)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"with id", "req_abc123", true},
		{"without id", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})
			handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return tt.id })(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					FromContext(r.Context()).InfoContext(r.Context(), "handled")
				})))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			got, ok := rec[FieldRequestID]
			if ok != tt.want || (tt.want && got != tt.id) {
				t.Errorf("%s = %v (present %v), want %q", FieldRequestID, got, ok, tt.id)
			}
		})
	}
}
