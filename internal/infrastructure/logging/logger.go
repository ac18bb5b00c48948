// Package logging provides structured logging infrastructure for flowctl.
// It wraps Go's standard log/slog package with context-aware logging,
// correlation IDs, and orchestration-specific log attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// SpecIDKey is the context key for the specification identifier.
	SpecIDKey contextKey = "spec_id"
	// PhaseKey is the context key for the current phase name.
	PhaseKey contextKey = "phase"
	// SessionKey is the context key for the session index.
	SessionKey contextKey = "session"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with additional functionality for flowctl.
type Logger struct {
	slogger *slog.Logger
	level   slog.Level
	mu      sync.RWMutex
}

// global is the package-level default logger.
var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	if global == nil {
		Init(DefaultConfig())
	}
	return global
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel records level on the Logger. The handler's threshold is fixed
// when New builds it, so SetLevel does not change which records are
// emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLevel(level)
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slogger: l.slogger.WithGroup(name),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+8)

	if v := ctx.Value(CorrelationIDKey); v != nil {
		enriched = append(enriched, "correlation_id", v)
	}
	if v := ctx.Value(SpecIDKey); v != nil {
		enriched = append(enriched, "spec_id", v)
	}
	if v := ctx.Value(PhaseKey); v != nil {
		enriched = append(enriched, "phase", v)
	}
	if v := ctx.Value(SessionKey); v != nil {
		enriched = append(enriched, "session", v)
	}

	enriched = append(enriched, args...)
	return enriched
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.slogger
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithSpecID adds a specification identifier to the context.
func WithSpecID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SpecIDKey, id)
}

// WithPhase adds a phase name to the context.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}

// WithSession adds a session index to the context.
func WithSession(ctx context.Context, session int) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if v := ctx.Value(CorrelationIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- Domain-specific logging helpers ---

// LogPhaseStart logs the start of a phase's execution across its sessions.
func LogPhaseStart(ctx context.Context, logger *Logger, phase string, taskCount int) {
	logger.InfoContext(ctx, "phase started",
		"phase", phase,
		"task_count", taskCount,
	)
}

// LogPhaseComplete logs the completion of a phase.
func LogPhaseComplete(ctx context.Context, logger *Logger, phase string, duration time.Duration) {
	logger.InfoContext(ctx, "phase completed",
		"phase", phase,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogPhaseTimeout logs a phase wait that exceeded its deadline.
func LogPhaseTimeout(ctx context.Context, logger *Logger, phase string, pending []string) {
	logger.ErrorContext(ctx, "phase wait timed out",
		"phase", phase,
		"pending_tasks", pending,
	)
}

// LogSessionNotify logs an agent-adapter user notification, successful or not.
func LogSessionNotify(ctx context.Context, logger *Logger, session int, task string, err error) {
	if err != nil {
		logger.WarnContext(ctx, "notify_user failed",
			"session", session,
			"task", task,
			"error", err.Error(),
		)
		return
	}
	logger.DebugContext(ctx, "notify_user sent",
		"session", session,
		"task", task,
	)
}

// LogCheckpointWritten logs a successful checkpoint snapshot.
func LogCheckpointWritten(ctx context.Context, logger *Logger, path string) {
	logger.DebugContext(ctx, "checkpoint written", "path", path)
}

// LogMergeStart logs the start of the sequential merge sub-operation.
func LogMergeStart(ctx context.Context, logger *Logger, specID, baseBranch string, sessionCount int) {
	logger.InfoContext(ctx, "merge started",
		"spec_id", specID,
		"base_branch", baseBranch,
		"session_count", sessionCount,
	)
}

// LogMergeConflict logs a merge conflict on a given session branch.
func LogMergeConflict(ctx context.Context, logger *Logger, session int, branch string, paths []string) {
	logger.ErrorContext(ctx, "merge conflict",
		"session", session,
		"branch", branch,
		"paths", paths,
	)
}

// LogMergeComplete logs the completion of the merge sub-operation.
func LogMergeComplete(ctx context.Context, logger *Logger, specID string, duration time.Duration) {
	logger.InfoContext(ctx, "merge completed",
		"spec_id", specID,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogInterrupted logs a cooperative-cancellation signal observed between
// phases, before phase is started.
func LogInterrupted(ctx context.Context, logger *Logger, phase string) {
	logger.WarnContext(ctx, "interrupt received, not starting phase", "phase", phase)
}
