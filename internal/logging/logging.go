package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is a deliberately small, framework-agnostic logging interface.
// Components depend on this rather than on slog directly so tests can
// record output with a dummy.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value any
}

// Config controls where log lines go.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// File, when set, receives JSON lines in addition to the text output on stderr.
	File string `yaml:"file"`
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	l *slog.Logger
}

// New builds a logger that writes human-readable text to stderr and, if
// cfg.File is set, JSON lines to that file. The returned cleanup closes the file.
func New(cfg Config) (*SlogLogger, func() error) {
	level := ParseLevel(cfg.Level)
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if cfg.File == "" {
		return &SlogLogger{l: slog.New(stderrHandler)}, func() error { return nil }
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Fall back to stderr-only if the file cannot be opened
		lg := &SlogLogger{l: slog.New(stderrHandler)}
		lg.Error("failed to open log file, using stderr only",
			Field{Key: "file", Value: cfg.File},
			Field{Key: "error", Value: err.Error()})
		return lg, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	lg := &SlogLogger{l: slog.New(slogmulti.Fanout(stderrHandler, fileHandler))}
	return lg, file.Close
}

// NewWithWriters creates a logger with custom writers (for testing).
func NewWithWriters(text, jsonOut io.Writer, level string) *SlogLogger {
	lvl := ParseLevel(level)
	var handlers []slog.Handler
	if text != nil {
		handlers = append(handlers, slog.NewTextHandler(text, &slog.HandlerOptions{Level: lvl}))
	}
	if jsonOut != nil {
		handlers = append(handlers, slog.NewJSONHandler(jsonOut, &slog.HandlerOptions{Level: lvl}))
	}
	return &SlogLogger{l: slog.New(slogmulti.Fanout(handlers...))}
}

// NewStdoutLogger creates a JSON logger on stdout tagged with component.
func NewStdoutLogger(component string) *SlogLogger {
	l := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if component != "" {
		l = l.With("component", component)
	}
	return &SlogLogger{l: l}
}

// Slog exposes the underlying slog.Logger, e.g. for slog.SetDefault.
func (s *SlogLogger) Slog() *slog.Logger {
	return s.l
}

func (s *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	if !s.l.Enabled(context.Background(), level) {
		return
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs(fields)...)
}

func (s *SlogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s *SlogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s *SlogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s *SlogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s *SlogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range attrs(fields) {
		args = append(args, a)
	}
	return &SlogLogger{l: s.l.With(args...)}
}

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, slog.String(f.Key, v.Error()))
		case fmt.Stringer:
			out = append(out, slog.String(f.Key, v.String()))
		default:
			out = append(out, slog.Any(f.Key, v))
		}
	}
	return out
}

// ParseLevel maps a textual level to slog.Level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Err is shorthand for the ubiquitous error field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
