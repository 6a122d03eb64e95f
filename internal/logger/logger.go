// Package logger provides structured logging for the explorer engine.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log levels.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level     Level
	Pretty    bool // console writer instead of JSON lines
	Output    io.Writer
	Component string
}

// DefaultConfig logs warnings and above to stderr. The CLI keeps stdout for
// command output.
func DefaultConfig() Config {
	return Config{
		Level:  WarnLevel,
		Output: os.Stderr,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	output := cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	zl := zerolog.New(output).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()

	l := &Logger{zl: zl}
	if cfg.Component != "" {
		l = l.WithComponent(cfg.Component)
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel parses a level name. An empty name means WarnLevel and
// "warning" is accepted for "warn".
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return WarnLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a new logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithEndpoint tags every entry with an endpoint id and type.
func (l *Logger) WithEndpoint(id, endpointType string) *Logger {
	return &Logger{zl: l.zl.With().Str("endpoint_id", id).Str("endpoint_type", endpointType).Logger()}
}

// WithError returns a new logger with error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Dispatch describes one completed explorer request.
type Dispatch struct {
	EndpointID   string
	DefinitionID string
	LogID        string
	Method       string
	Path         string
	Status       int
	Elapsed      time.Duration
	Error        string
}

// DispatchEvent logs a completed request. Failed requests log at warn.
func (l *Logger) DispatchEvent(d Dispatch) {
	event := l.zl.Info()
	if d.Error != "" {
		event = l.zl.Warn().Str("error", d.Error)
	}
	if d.DefinitionID != "" {
		event = event.Str("definition_id", d.DefinitionID)
	}
	if d.LogID != "" {
		event = event.Str("log_id", d.LogID)
	}
	event.
		Str("endpoint_id", d.EndpointID).
		Str("method", d.Method).
		Str("path", d.Path).
		Int("status_code", d.Status).
		Dur("duration", d.Elapsed).
		Msg("API request")
}

// HealthEvent logs the outcome of one connection test.
func (l *Logger) HealthEvent(endpointID string, success bool, statusCode int, elapsed time.Duration, message string) {
	event := l.zl.Info()
	if !success {
		event = l.zl.Warn()
	}
	event.
		Str("endpoint_id", endpointID).
		Bool("success", success).
		Int("status_code", statusCode).
		Dur("duration", elapsed).
		Str("message", message).
		Msg("Connection test")
}

// ErrorEvent logs a failed side effect of an endpoint operation, such as a
// ledger append or an inventory update.
func (l *Logger) ErrorEvent(err error, endpointID string, operation string) {
	l.zl.Error().
		Err(err).
		Str("endpoint_id", endpointID).
		Str("operation", operation).
		Msg("Operation failed")
}
