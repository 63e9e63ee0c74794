package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger writes tabular audit records to a file. Implementations are safe
// for concurrent use.
type Logger interface {
	// WriteHeader declares the columns of subsequent rows.
	WriteHeader(columns []string) error
	// WriteRow appends a record. A timestamp is added automatically.
	WriteRow(row []string) error
	// ShouldWriteHeader reports whether the underlying file is empty.
	ShouldWriteHeader() (bool, error)
	// Close flushes buffered rows and closes the file.
	Close() error
}

// LogFormat selects the on-disk format of a Logger.
type LogFormat string

const (
	LogFormatCSV  LogFormat = "csv"
	LogFormatJSON LogFormat = "json"
)

// ParseLogFormat converts a format name to a LogFormat.
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return LogFormatCSV, nil
	case "json", "jsonl":
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported log format: %s (valid: csv, json)", format)
	}
}

// Extension returns the file extension for the format.
func (f LogFormat) Extension() string {
	if f == LogFormatJSON {
		return ".jsonl"
	}
	return ".csv"
}

// DefaultPath returns the default audit log location for a tool:
// {TEMP}/_{toolName}_{action}_{date}{ext}
//
// Example: /tmp/_jmapproxy_session_2026-01-09.csv
func DefaultPath(toolName, action string, format LogFormat) string {
	dateStr := time.Now().Format("2006-01-02")
	fileName := fmt.Sprintf("_%s_%s_%s%s", toolName, action, dateStr, format.Extension())
	return filepath.Join(os.TempDir(), fileName)
}

// NewLogger opens an audit logger of the given format at path. The file is
// created if needed and appended to otherwise.
func NewLogger(format LogFormat, path string) (Logger, error) {
	switch format {
	case LogFormatCSV:
		return NewCSVLogger(path)
	case LogFormatJSON:
		return NewJSONLogger(path)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}
