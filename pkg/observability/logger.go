// Package observability provides structured logging, metrics, health checks
// and tracing helpers shared by the Therapia binaries.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// LogFormat specifies the output format for logs.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogLevel represents logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[redacted]"

// sensitiveKeys are attribute keys that may carry client contact details or
// intake answers. They never reach the log output.
var sensitiveKeys = map[string]bool{
	"contact":      true,
	"contact_info": true,
	"email":        true,
	"intake":       true,
	"intake_form":  true,
	"phone":        true,
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  LogLevel
	Format LogFormat
	// Output defaults to os.Stderr.
	Output         io.Writer
	AddSource      bool
	ServiceName    string
	ServiceVersion string
}

// LogConfigFor returns text logs at info level for development and JSON
// logs with source locations everywhere else. level overrides the level
// when set.
func LogConfigFor(appEnv, level, version string) LogConfig {
	cfg := LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatText,
		Output:         os.Stderr,
		ServiceName:    "therapia",
		ServiceVersion: "dev",
	}
	if appEnv != "" && appEnv != "development" {
		cfg.Format = LogFormatJSON
		cfg.Output = os.Stdout
		cfg.AddSource = true
	}
	if level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// NewLogger builds a slog logger that stamps every record with the service
// name and version, the request, correlation and trace IDs found in the
// context, and redacts client contact details.
func NewLogger(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       levelOf(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: redact,
	}

	var base slog.Handler
	if cfg.Format == LogFormatJSON {
		base = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		base = slog.NewTextHandler(cfg.Output, opts)
	}

	var static []slog.Attr
	if cfg.ServiceName != "" {
		static = append(static, slog.String("service", cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		static = append(static, slog.String("version", cfg.ServiceVersion))
	}
	return slog.New(contextHandler{next: base.WithAttrs(static)})
}

func levelOf(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// contextHandler copies request-scoped IDs from the context onto records.
type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := CorrelationIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(CorrelationIDKey, id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(RequestIDKey, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}
