package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewDevMode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)

	logger.Debug("test debug")
	logger.Info("test info")

	output := buf.String()
	if !strings.Contains(output, "test debug") {
		t.Error("expected debug message visible in dev mode")
	}
	if !strings.Contains(output, "test info") {
		t.Error("expected info message visible in dev mode")
	}
}

func TestNewProdMode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Debug("hidden")
	logger.Info("visible", "property_id", "prop_001")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message should be filtered in prod mode")
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("prod output is not JSON: %v", err)
	}
	if line["property_id"] != "prop_001" {
		t.Errorf("property_id = %v", line["property_id"])
	}
}

func TestSetup(t *testing.T) {
	old := slog.Default()
	defer slog.SetDefault(old)

	Setup(false)
	slog.Info("prod test")
}

func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestRequestLogger(t *testing.T) {
	buf := captureDefault(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/properties", nil)
	req.Header.Set("X-User-ID", "alice")
	RequestLogger(inner).ServeHTTP(httptest.NewRecorder(), req)

	output := buf.String()
	for _, want := range []string{"GET", "/api/properties", "user_id=alice"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log: %s", want, output)
		}
	}
}

func TestRequestLoggerSkipsQuietPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			buf := captureDefault(t)

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			RequestLogger(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))

			if buf.Len() > 0 {
				t.Errorf("expected no log for %s, got %s", path, buf.String())
			}
		})
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	buf := captureDefault(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	RequestLogger(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	if !strings.Contains(buf.String(), "404") {
		t.Error("expected 404 status in log")
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Error("expected 4xx to log at warn")
	}
}
