// Package rlog provides centralized zerolog-based logging for replicate.
//
// It mirrors the logging discipline of the media-analytics service this
// library was extracted from: zero-allocation structured logging, JSON
// output in production, console output in development, and a global
// logger configurable once at startup via Init.
package rlog

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string

	// Format is the output format: json or console.
	Format string

	// Output is the writer for log output. Default: os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

//nolint:gochecknoinits // ensures logging works before an explicit Init call
func init() {
	initLogger(DefaultConfig())
}

// Init (re)configures the global logger. Safe to call multiple times.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the global logger instance.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With creates a child logger builder seeded with the global logger.
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

type ctxKey struct{}

// WithComponent returns a context carrying a logger tagged with component.
func WithComponent(ctx context.Context, component string) context.Context {
	l := With().Str("component", component).Logger()
	return context.WithValue(ctx, ctxKey{}, &l)
}

// Ctx returns the logger attached to ctx by WithComponent, or the global
// logger if none was attached.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
		return l
	}
	l := Logger()
	return &l
}

// Info starts a message at info level on the global logger.
func Info() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Info() }

// Warn starts a message at warn level on the global logger.
func Warn() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Warn() }

// Error starts a message at error level on the global logger.
func Error() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Error() }

// Debug starts a message at debug level on the global logger.
func Debug() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Debug() }
