package logging_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"parburn/internal/logging"
)

func newBufferLogger(t *testing.T, format string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		Level:   "debug",
		Format:  format,
		Writers: []io.Writer{&buf},
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return logger, &buf
}

func TestConsoleHandlerFormatsAttrs(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	logger.Info("disc burned", "label", "docs-0001-001", "bytes", int64(1024))

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{" INFO ", "disc burned", "label=docs-0001-001", "bytes=1024"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestConsoleHandlerQuotesAwkwardValues(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	logger.Warn("odd", "path", "/tmp/with space/file")

	if !strings.Contains(buf.String(), `path="/tmp/with space/file"`) {
		t.Fatalf("value not quoted: %s", buf.String())
	}
}

func TestJSONHandlerRenamesKeys(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")
	logger.Info("set closed", "set", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("parse: %v (%s)", err, buf.String())
	}
	if record["msg"] != "set closed" || record["level"] != "info" {
		t.Fatalf("record = %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("timestamp key not renamed to ts")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	if err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
