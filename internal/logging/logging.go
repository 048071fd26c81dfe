// Package logging wraps log/slog behind the small Logger interface shared by
// the engine, the simulation state and the HTTP server.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field is one structured attribute on a log line.
type Field = slog.Attr

func String(key, value string) Field             { return slog.String(key, value) }
func Int(key string, value int) Field            { return slog.Int(key, value) }
func Float64(key string, value float64) Field    { return slog.Float64(key, value) }
func Bool(key string, value bool) Field          { return slog.Bool(key, value) }
func Duration(key string, v time.Duration) Field { return slog.Duration(key, v) }

// Err records err under "error". A nil err is logged as "".
func Err(err error) Field {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Logger is the logging surface used across the simulator.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects the handler. Level is one of debug, info, warn or error;
// Format is json or text. Output defaults to stdout.
type Config struct {
	Level     string
	Format    string
	AddSource bool
	Output    io.Writer
}

// New builds a slog-backed Logger.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	}
	return &slogLogger{l: slog.New(h)}
}

// NewFromEnv is New(ConfigFromEnv()).
func NewFromEnv() Logger {
	return New(ConfigFromEnv())
}

// ConfigFromEnv reads SIM_LOG_LEVEL and SIM_LOG_FORMAT, falling back to the
// unprefixed LOG_LEVEL and LOG_FORMAT.
func ConfigFromEnv() Config {
	return Config{
		Level:     lookupEnv("SIM_LOG_LEVEL", "LOG_LEVEL"),
		Format:    lookupEnv("SIM_LOG_FORMAT", "LOG_FORMAT"),
		AddSource: true,
	}
}

func lookupEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) log(ctx context.Context, lvl slog.Level, msg string, fields []Field) {
	s.l.LogAttrs(ctx, lvl, msg, fields...)
}

func (s *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

func (s *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return s
	}
	return &slogLogger{l: slog.New(s.l.Handler().WithAttrs(fields))}
}

// Noop discards everything.
func Noop() Logger { return discard{} }

type discard struct{}

func (discard) With(...Field) Logger                    { return discard{} }
func (discard) Debug(context.Context, string, ...Field) {}
func (discard) Info(context.Context, string, ...Field)  {}
func (discard) Warn(context.Context, string, ...Field)  {}
func (discard) Error(context.Context, string, ...Field) {}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	loggerKey
)

// EnsureRequestID returns ctx unchanged when it already carries a request
// id; otherwise it attaches a fresh UUID.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return ContextWithRequestID(ctx, id), id
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestLogger tags base with the request id carried by ctx, creating
// one if needed.
func WithRequestLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	ctx, id := EnsureRequestID(ctx)
	return ctx, base.With(String("request_id", id))
}

// ContextWithLogger stores l on ctx. A nil l is stored as Noop.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		l = Noop()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromContext returns the logger stored by ContextWithLogger, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(loggerKey).(Logger)
	return l
}
