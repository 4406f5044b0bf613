package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestConsoleLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(level)
	return slog.New(newConsoleHandler(buf, lvl))
}

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelInfo)

	logger.Info("scan started", String("folder", "/books"), Int("count", 3))

	line := buf.String()
	if !strings.Contains(line, "INFO scan started") {
		t.Fatalf("missing level/message: %q", line)
	}
	if !strings.Contains(line, "folder=/books") || !strings.Contains(line, "count=3") {
		t.Fatalf("missing attrs: %q", line)
	}
}

func TestConsoleHandlerComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(newTestConsoleLogger(&buf, slog.LevelInfo), "scheduler")

	logger.Info("operation admitted")

	line := buf.String()
	if !strings.Contains(line, "scheduler: operation admitted") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not appear as key=value: %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelWarn)

	logger.Info("ignored")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "ignored") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN kept") {
		t.Fatalf("warn should be logged: %q", out)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelInfo)

	logger.Error("failed", Error(errors.New("no such file")))

	if !strings.Contains(buf.String(), `error="no such file"`) {
		t.Fatalf("expected quoted error value, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	logger.Info("should not panic")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop logger should never be enabled")
	}
}
