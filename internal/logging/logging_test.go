package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cu-library/etddepositor/internal/config"
)

func TestNewWritesToExtraWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("package staged", String("package", "100000000_1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["msg"] != "package staged" {
		t.Fatalf("unexpected message: %v", entry["msg"])
	}
	if entry["package"] != "100000000_1" {
		t.Fatalf("unexpected package attr: %v", entry["package"])
	}
}

func TestNewRejectsUnknownLevelAndFormat(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigOpensRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ProcessingDir = t.TempDir()

	logger, closer, err := NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Warn("embargo active", String("package", "100000000_2"))
	if err := closer(); err != nil {
		t.Fatalf("close run log: %v", err)
	}

	logPath := cfg.LogDir() + "/" + time.Now().Format("2006-01-02") + "-run.log"
	contents, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(contents), "embargo active") {
		t.Fatalf("run log missing entry: %s", contents)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for input, want := range cases {
		got, err := parseLevel(input)
		if err != nil {
			t.Fatalf("parseLevel(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
