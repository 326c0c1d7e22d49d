package shared

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	WithLogger(logger, "account", "acc1").Info("synced")
	if got := buf.String(); !strings.Contains(got, "synced") || !strings.Contains(got, "account=acc1") {
		t.Errorf("expected message with key/value, got %q", got)
	}

	buf.Reset()
	SetLogLevel(logger, log.WarnLevel)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mpsync.log")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("written to file")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "written to file") {
		t.Errorf("expected message in log file, got %q", content)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique ids")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

func TestNewFingerprint(t *testing.T) {
	fp := NewFingerprint()
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(fp) {
		t.Errorf("expected 32 lowercase hex characters, got %q", fp)
	}
	if fp == NewFingerprint() {
		t.Error("expected unique fingerprints")
	}
}

func TestMillis(t *testing.T) {
	tc := []struct {
		ms   int
		want time.Duration
	}{
		{0, 0},
		{500, 500 * time.Millisecond},
		{2000, 2 * time.Second},
	}

	for _, tt := range tc {
		if got := Millis(tt.ms); got != tt.want {
			t.Errorf("Millis(%d) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}
