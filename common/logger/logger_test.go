package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	l := slog.New(h)

	l.Info("only first")
	l.Error("both")

	if !strings.Contains(a.String(), "only first") || !strings.Contains(a.String(), "both") {
		t.Errorf("first handler output = %q", a.String())
	}
	if strings.Contains(b.String(), "only first") {
		t.Errorf("second handler should drop info, got %q", b.String())
	}
	if !strings.Contains(b.String(), "both") {
		t.Errorf("second handler output = %q", b.String())
	}
}

func TestProductionHandlerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(stdoutHandler(&buf, false))
	l.Info("fix relayed", "latitude", 37.0)

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("output is not JSON: %q: %v", line, err)
	}
	if rec["msg"] != "fix relayed" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["latitude"] != 37.0 {
		t.Errorf("latitude = %v", rec["latitude"])
	}
}

func TestAppInfoTagsLogType(t *testing.T) {
	var buf bytes.Buffer
	prev := Log
	t.Cleanup(func() { Use(prev) })
	Use(slog.New(slog.NewTextHandler(&buf, nil)))

	AppInfo("service started")
	if !strings.Contains(buf.String(), "log_type=application") {
		t.Errorf("missing log_type: %q", buf.String())
	}
}

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	prev := Log
	t.Cleanup(func() { Use(prev) })
	Use(slog.New(slog.NewTextHandler(&buf, nil)))

	RequestLogger(context.Background(), "GET", "/tracking/status", "1.2.3.4", "curl", "req-1").Info("incoming request")
	for _, want := range []string{"method=GET", "path=/tracking/status", "request_id=req-1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %q in %q", want, buf.String())
		}
	}
}
