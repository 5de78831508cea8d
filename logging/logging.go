// Package logging is the structured event sink handed to every pipeline
// element at construction.  Components never reach for a global logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Field is a structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// String is a string field
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Float is a float64 field
func Float(key string, value float64) Field { return Field{Key: key, Value: value} }

// Int is an int field
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Any is a field of arbitrary type
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger receives the events of a calculation.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config controls basic logger behaviour.
type Config struct {
	Level  string `koanf:"level" yaml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" yaml:"format"` // json or text
}

// New constructs a Logger backed by slog writing to w (stderr if nil)
func New(cfg Config, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return &slogger{l: slog.New(h)}
}

// NewFromEnv constructs a logger from ESBOETC_LOG_LEVEL and ESBOETC_LOG_FORMAT
func NewFromEnv() Logger {
	return New(Config{
		Level:  os.Getenv("ESBOETC_LOG_LEVEL"),
		Format: os.Getenv("ESBOETC_LOG_FORMAT"),
	}, nil)
}

// ParseLevel maps a level name to a slog level, defaulting to warn
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type slogger struct {
	l *slog.Logger
}

func (s *slogger) With(fields ...Field) Logger {
	return &slogger{l: s.l.With(toArgs(fields)...)}
}

func (s *slogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, toArgs(fields)...) }
func (s *slogger) Info(msg string, fields ...Field)  { s.l.Info(msg, toArgs(fields)...) }
func (s *slogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, toArgs(fields)...) }
func (s *slogger) Error(msg string, fields ...Field) { s.l.Error(msg, toArgs(fields)...) }

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

// Noop returns a logger that drops all events.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) With(...Field) Logger      { return noopLogger{} }
func (noopLogger) Debug(string, ...Field)    {}
func (noopLogger) Info(string, ...Field)     {}
func (noopLogger) Warn(string, ...Field)     {}
func (noopLogger) Error(string, ...Field)    {}

// Event is one message captured by a Recorder
type Event struct {
	Level  slog.Level
	Msg    string
	Fields []Field
}

// Recorder is a Logger that keeps every event in memory.  It is safe for
// concurrent use.
type Recorder struct {
	mu     *sync.Mutex
	events *[]Event
	fields []Field
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, events: &[]Event{}}
}

func (r *Recorder) add(lvl slog.Level, msg string, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append(append([]Field{}, r.fields...), fields...)
	*r.events = append(*r.events, Event{Level: lvl, Msg: msg, Fields: all})
}

// With returns a Recorder sharing r's event list with extra fields attached
func (r *Recorder) With(fields ...Field) Logger {
	return &Recorder{mu: r.mu, events: r.events, fields: append(append([]Field{}, r.fields...), fields...)}
}

func (r *Recorder) Debug(msg string, fields ...Field) { r.add(slog.LevelDebug, msg, fields) }
func (r *Recorder) Info(msg string, fields ...Field)  { r.add(slog.LevelInfo, msg, fields) }
func (r *Recorder) Warn(msg string, fields ...Field)  { r.add(slog.LevelWarn, msg, fields) }
func (r *Recorder) Error(msg string, fields ...Field) { r.add(slog.LevelError, msg, fields) }

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, *r.events...)
}

// Warnings returns the messages recorded at warn level
func (r *Recorder) Warnings() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Level == slog.LevelWarn {
			out = append(out, e.Msg)
		}
	}
	return out
}

// OrNoop returns l, or a Noop logger if l is nil
func OrNoop(l Logger) Logger {
	if l == nil {
		return Noop()
	}
	return l
}
