// Package logging wraps logrus with the exact line format spec.md §6
// mandates: "MMM DD HH:MM:SS host:port message\n", flushed after every
// write.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// AddrField is the logrus field key call sites use to attach a remote
// address to a log line. Absent, the formatter renders "-".
const AddrField = "addr"

// LineFormatter renders logrus entries in the master daemon's wire
// format.
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	addr := "-"
	if v, ok := e.Data[AddrField]; ok {
		addr = fmt.Sprint(v)
	}
	line := fmt.Sprintf("%s %s %s\n", e.Time.Format("Jan 02 15:04:05"), addr, e.Message)
	return []byte(line), nil
}

// NewLogger opens path in append mode and returns a logrus.Logger writing
// to it with LineFormatter, plus the file handle so the caller can close
// it on shutdown. Every Log call is a single unbuffered os.File.Write, so
// the log is flushed after each record without any extra bookkeeping.
func NewLogger(path string) (*logrus.Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: opening log file %s: %w", path, err)
	}
	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetFormatter(LineFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger, f, nil
}

// WithAddr returns an entry carrying addr, or the bare logger's entry
// when addr is empty (rendered as "-").
func WithAddr(logger *logrus.Logger, addr string) *logrus.Entry {
	if addr == "" {
		return logrus.NewEntry(logger)
	}
	return logger.WithField(AddrField, addr)
}
