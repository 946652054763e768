// Package logging provides the engine's leveled, structured, JSON-line
// diagnostic logger. It is a diagnostic sink, not a network-visible
// facility: nothing in this module listens on a socket.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nbtaylor/lockvault/config"
)

// Level represents the severity of a log entry.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// entry is a single structured log line.
type entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger is a leveled, component-scoped, JSON-line writer. A nil *Logger
// is valid and every method on it is a no-op, so callers can pass it
// through optional diagnostic hooks without a separate enabled check.
type Logger struct {
	mu        sync.Mutex
	writer    io.Writer
	level     Level
	component string
	format    string
}

// New builds a Logger from cfg. Output "stdout"/"stderr" selects the
// matching stream; anything else is treated as a file path opened for
// append.
func New(cfg config.LoggingConfig) (*Logger, error) {
	var w io.Writer
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", cfg.Output, err)
		}
		w = f
	}

	return &Logger{
		writer: w,
		level:  parseLevel(cfg.Level),
		format: cfg.Format,
	}, nil
}

// WithComponent returns a logger that tags every entry with component,
// sharing the parent's writer, level, and format.
func (l *Logger) WithComponent(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		writer:    l.writer,
		level:     l.level,
		component: component,
		format:    l.format,
	}
}

func (l *Logger) write(level Level, msg string, fields map[string]any) {
	if l == nil || level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		Fields:    fields,
	}

	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.writer.Write(append(data, '\n'))
}

// Debug logs at debug level with optional structured fields.
func (l *Logger) Debug(msg string, fields map[string]any) { l.write(Debug, msg, fields) }

// Info logs at info level with optional structured fields.
func (l *Logger) Info(msg string, fields map[string]any) { l.write(Info, msg, fields) }

// Warn logs at warn level with optional structured fields.
func (l *Logger) Warn(msg string, fields map[string]any) { l.write(Warn, msg, fields) }

// Error logs at error level with optional structured fields.
func (l *Logger) Error(msg string, fields map[string]any) { l.write(Error, msg, fields) }
