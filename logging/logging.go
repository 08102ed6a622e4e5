// Package logging provides the leveled, component-scoped logger used by the
// API connector, the Socket Mode manager and the Events API handler.
package logging

import (
	"io"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Format selects the encoding of log lines.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a case-insensitive level name, defaulting to info.
func ParseLevel(s string) Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return LevelInfo
	}
	switch lvl {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return LevelDebug
	case zerolog.WarnLevel:
		return LevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// sink is shared by a logger and every child derived from it, so that
// SetOutput and SetLevel on the root apply to all components.
type sink struct {
	mu     sync.RWMutex
	output io.Writer
	format Format
	level  Level
	zlog   zerolog.Logger
}

func (s *sink) rebuild() {
	var w io.Writer = s.output
	if s.format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: s.output, TimeFormat: "15:04:05.000", NoColor: true}
	}
	s.zlog = zerolog.New(w).Level(s.level.zerolog()).With().Timestamp().Logger()
}

// Logger writes structured log lines through zerolog.
type Logger struct {
	sink      *sink
	component string
	traceID   string
}

// New creates a Logger writing console lines to stdout at info level.
func New() *Logger {
	s := &sink{output: os.Stdout, format: FormatConsole, level: LevelInfo}
	s.rebuild()
	return &Logger{sink: s}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	l := New()
	l.SetOutput(io.Discard)
	return l
}

// WithComponent returns a child logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{sink: l.sink, component: component, traceID: l.traceID}
}

// WithTraceID returns a child logger tagged with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{sink: l.sink, component: l.component, traceID: traceID}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
	l.sink.rebuild()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = w
	l.sink.rebuild()
}

// SetFormat switches between console and JSON lines.
func (l *Logger) SetFormat(f Format) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.format = f
	l.sink.rebuild()
}

// Zerolog returns the underlying logger with component and trace fields applied.
func (l *Logger) Zerolog() zerolog.Logger {
	l.sink.mu.RLock()
	zl := l.sink.zlog
	l.sink.mu.RUnlock()

	ctx := zl.With()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	if l.traceID != "" {
		ctx = ctx.Str("trace_id", l.traceID)
	}
	return ctx.Logger()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	zl := l.Zerolog()
	ev := zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	for _, f := range fields {
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err, ok := f[k].(error); ok {
				ev = ev.AnErr(k, err)
				continue
			}
			ev = ev.Interface(k, f[k])
		}
	}
	ev.Msg(msg)
}
