// Package logger builds the structured logger shared by every component.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Format defines the supported output formats for the logger.
type Format string

const (
	// FormatText renders logs in a human-readable text form.
	FormatText Format = "text"
	// FormatJSON renders logs as JSON objects.
	FormatJSON Format = "json"
)

// Config controls the behaviour of the structured logger.
type Config struct {
	Format      Format
	Level       string
	AddSource   bool
	Writer      io.Writer
	ServiceName string
}

// Logger wraps slog.Logger to attach standard attributes and trace metadata.
type Logger struct {
	*slog.Logger
	cfg Config
}

// New constructs a structured logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "", "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "err", "error":
		level = slog.LevelError
	default:
		return nil, errors.New("unsupported log level: " + cfg.Level)
	}

	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "xmlabridge"
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(cfg.Writer, handlerOpts)
	case FormatText, "":
		handler = slog.NewTextHandler(cfg.Writer, handlerOpts)
	default:
		return nil, errors.New("unsupported log format: " + string(cfg.Format))
	}

	handler = &spanHandler{Handler: handler}

	logger := slog.New(handler).With(
		slog.Int("pid", os.Getpid()),
		slog.String("service", cfg.ServiceName),
	)

	return &Logger{
		Logger: logger,
		cfg:    cfg,
	}, nil
}

// WithComponent returns a child logger tagged with the provided component name.
func (l *Logger) WithComponent(component string) *slog.Logger {
	if l == nil || l.Logger == nil {
		return nil
	}
	if component == "" {
		return l.Logger
	}
	return l.Logger.With(slog.String("component", component))
}

// spanHandler decorates records with the identifiers of the active
// OpenTelemetry span, when there is one in the context.
type spanHandler struct {
	slog.Handler
}

func (h *spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *spanHandler) WithGroup(name string) slog.Handler {
	return &spanHandler{Handler: h.Handler.WithGroup(name)}
}

func (h *spanHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, record)
}
