package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := parseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestSetup_CreatesDailyFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := Setup("info", dir)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer closer.Close()

	slog.Info("a test record", "key", "value")

	name := fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "a test record") {
		t.Fatalf("expected record in log file, got %q", data)
	}
}

func TestSetup_RejectsBadLevel(t *testing.T) {
	if _, err := Setup("shouting", t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	dir := t.TempDir()
	closer, err := Setup("warn", dir)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer closer.Close()

	slog.Info("should be filtered")
	slog.Warn("should appear")

	name := fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02"))
	data, _ := os.ReadFile(filepath.Join(dir, name))
	if strings.Contains(string(data), "should be filtered") {
		t.Fatalf("info record leaked past warn level")
	}
	if !strings.Contains(string(data), "should appear") {
		t.Fatalf("warn record missing")
	}
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	past := time.Now().AddDate(0, 0, -config.LogMaxAgeDays-1)

	oldFile := filepath.Join(dir, config.LogFilePrefix+"2000-01-01.log")
	os.WriteFile(oldFile, []byte("old"), 0o644)
	os.Chtimes(oldFile, past, past)

	freshFile := filepath.Join(dir, config.LogFilePrefix+"fresh.log")
	os.WriteFile(freshFile, []byte("fresh"), 0o644)

	foreign := filepath.Join(dir, "other-2000-01-01.log")
	os.WriteFile(foreign, []byte("foreign"), 0o644)
	os.Chtimes(foreign, past, past)

	if removed := CleanOldLogs(dir, config.LogMaxAgeDays); removed != 1 {
		t.Fatalf("expected exactly the one old prefixed file removed, got %d", removed)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Fatalf("old file should be gone")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Fatalf("fresh file should remain")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign-prefix file should remain")
	}
}

func TestCleanOldLogs_MissingDir(t *testing.T) {
	if removed := CleanOldLogs(filepath.Join(t.TempDir(), "nope"), 30); removed != 0 {
		t.Fatalf("expected 0 removals on a missing dir, got %d", removed)
	}
}
