package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// CommandLog represents a single command executed against the cache core
type CommandLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	Command    string    `json:"command"`
	Key        string    `json:"key,omitempty"`
	Method     string    `json:"method,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FromCache  bool      `json:"from_cache,omitempty"`
	OutputSize int       `json:"output_size,omitempty"`
}

// CommandLogger writes command log entries to the console and/or a
// JSON-lines file.
type CommandLogger struct {
	mu      sync.Mutex
	file    *os.File
	console io.Writer
}

// NewCommandLogger returns a logger with no outputs configured.
func NewCommandLogger() *CommandLogger {
	return &CommandLogger{}
}

// SetOutput sets the JSON-lines log file
func (l *CommandLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole sets the human-readable console destination; nil disables it.
func (l *CommandLogger) SetConsole(w io.Writer) {
	l.mu.Lock()
	l.console = w
	l.mu.Unlock()
}

// Log writes a command log entry
func (l *CommandLogger) Log(entry *CommandLog) {
	if l == nil || entry == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if l.console != nil {
		status := "ok"
		if !entry.Success {
			status = "FAIL"
		}
		target := entry.Key
		if entry.Endpoint != "" {
			target = entry.Endpoint
		}
		cached := ""
		if entry.FromCache {
			cached = " [cached]"
		}
		fmt.Fprintf(l.console, "[command] %s %s %s %s %dms%s\n",
			status, entry.RequestID, entry.Command, target, entry.DurationMs, cached)
		if entry.Error != "" {
			fmt.Fprintf(l.console, "[command]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			Op().Warn("marshal command log", "error", err)
			return
		}
		if _, err := l.file.Write(append(data, '\n')); err != nil {
			Op().Warn("write command log", "error", err)
		}
	}
}

// Close closes the log file
func (l *CommandLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
