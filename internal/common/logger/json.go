package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JSONLogger writes one JSON object per line (JSON Lines). Column names
// declared with WriteHeader become the object keys.
type JSONLogger struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	name    string
	columns []string
}

// NewJSONLogger opens path for appending JSON Lines records.
func NewJSONLogger(path string) (*JSONLogger, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("could not create JSON log file: %w", err)
	}
	return &JSONLogger{
		file:   file,
		writer: bufio.NewWriter(file),
		name:   file.Name(),
	}, nil
}

// WriteHeader records the column names. Nothing is written to the file.
func (l *JSONLogger) WriteHeader(columns []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.columns = append([]string(nil), columns...)
	return nil
}

// WriteRow writes a row as a JSON object keyed by the header columns.
func (l *JSONLogger) WriteRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return fmt.Errorf("JSON writer is not initialized")
	}
	if l.columns == nil {
		return fmt.Errorf("WriteHeader must be called before WriteRow")
	}
	if len(row) != len(l.columns) {
		return fmt.Errorf("row has %d fields, header has %d", len(row), len(l.columns))
	}

	record := make(map[string]string, len(row)+1)
	record["timestamp"] = time.Now().Format(time.RFC3339)
	for i, col := range l.columns {
		record[col] = row[i]
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode JSON row: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON row: %w", err)
	}
	return l.writer.Flush()
}

// ShouldWriteHeader always reports true: JSON rows carry their own keys,
// and the header must be declared on every open.
func (l *JSONLogger) ShouldWriteHeader() (bool, error) {
	return true, nil
}

// Close flushes and closes the file.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			return fmt.Errorf("error flushing JSON on close: %w", err)
		}
		l.writer = nil
	}
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Name returns the path of the log file.
func (l *JSONLogger) Name() string {
	return l.name
}
