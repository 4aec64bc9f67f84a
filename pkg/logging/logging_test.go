package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var lineRE = regexp.MustCompile(`^[A-Z][a-z]{2} \d{2} \d{2}:\d{2}:\d{2} (\S+) (.*)\n$`)

func TestLineFormatWithAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masterd.log")

	logger, f, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer f.Close()

	WithAddr(logger, "203.0.113.5:2342").Info("registered")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	m := lineRE.FindStringSubmatch(string(data))
	if m == nil {
		t.Fatalf("log line %q did not match expected format", data)
	}
	if m[1] != "203.0.113.5:2342" {
		t.Fatalf("got addr %q, want %q", m[1], "203.0.113.5:2342")
	}
	if m[2] != "registered" {
		t.Fatalf("got message %q, want %q", m[2], "registered")
	}
}

func TestLineFormatNoAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masterd.log")

	logger, f, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer f.Close()

	WithAddr(logger, "").Info("starting up")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	m := lineRE.FindStringSubmatch(string(data))
	if m == nil {
		t.Fatalf("log line %q did not match expected format", data)
	}
	if m[1] != "-" {
		t.Fatalf("got addr %q, want \"-\"", m[1])
	}
}

func TestNewLoggerAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masterd.log")

	logger1, f1, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	WithAddr(logger1, "").Info("first")
	f1.Close()

	logger2, f2, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger (reopen): %v", err)
	}
	defer f2.Close()
	WithAddr(logger2, "").Info("second")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := regexp.MustCompile(`\n`).Split(string(data), -1)
	// last element is empty string after trailing newline split
	if len(lines) != 3 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines)-1, data)
	}
}
