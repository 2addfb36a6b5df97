package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var defaultLogger *slog.Logger

// Initialize installs the process-wide logger writing to stdout.
// format is one of json, text or pretty.
func Initialize(level, format string) {
	defaultLogger = New(os.Stdout, level, format)
	slog.SetDefault(defaultLogger)
}

// New builds a logger whose *Context methods also emit the attributes stored
// on the context with WithAttrs.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	case "pretty":
		h = tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(contextHandler{h})
}

// ParseLevel falls back to info for anything it does not recognise.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func Get() *slog.Logger {
	if defaultLogger == nil {
		Initialize("info", "text")
	}
	return defaultLogger
}

type attrsKey struct{}

// WithAttrs returns a context carrying extra key/value pairs for every
// *Context log call made with it. Pairs accumulate across calls.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if args, ok := ctx.Value(attrsKey{}).([]any); ok {
		r.Add(args...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	Get().InfoContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	Get().ErrorContext(ctx, msg, args...)
}

// WithMethod scopes a logger to one service method.
func WithMethod(methodName string) *slog.Logger {
	return Get().With("method", methodName)
}

// WithGroup scopes a logger to one chama group.
func WithGroup(groupID int32) *slog.Logger {
	return Get().With("group_id", groupID)
}

func emit(level slog.Level, msg string, head []any, tail []any) {
	Get().Log(context.Background(), level, msg, append(head, tail...)...)
}

// EnterMethod, ExitMethod and ExitMethodWithError trace repository writes.
func EnterMethod(methodName string, args ...any) {
	emit(slog.LevelDebug, "→ Method entered", []any{"method", methodName}, args)
}

func ExitMethod(methodName string, args ...any) {
	emit(slog.LevelDebug, "← Method exited", []any{"method", methodName}, args)
}

func ExitMethodWithError(methodName string, err error, args ...any) {
	emit(slog.LevelError, "← Method failed", []any{"method", methodName, "error", err}, args)
}

func DatabaseCall(operation, table string, args ...any) {
	emit(slog.LevelDebug, "→ Database call", []any{"operation", operation, "table", table}, args)
}

func DatabaseResult(operation string, rowsAffected int64, err error, args ...any) {
	head := []any{"operation", operation, "rows_affected", rowsAffected}
	if err != nil {
		emit(slog.LevelError, "← Database call failed", append(head, "error", err), args)
		return
	}
	emit(slog.LevelDebug, "← Database call succeeded", head, args)
}

// ExternalServiceCall and ExternalServiceResult bracket calls to the payment
// provider and the email API.
func ExternalServiceCall(service, operation string, args ...any) {
	emit(slog.LevelDebug, "→ External call", []any{"service", service, "operation", operation}, args)
}

func ExternalServiceResult(service, operation string, err error, args ...any) {
	head := []any{"service", service, "operation", operation}
	if err != nil {
		emit(slog.LevelError, "← External call failed", append(head, "error", err), args)
		return
	}
	emit(slog.LevelDebug, "← External call succeeded", head, args)
}

// Transition is the audit line for a withdrawal, loan or contribution status
// change.
func Transition(entity string, id int32, from, to string, args ...any) {
	emit(slog.LevelInfo, "⇄ State transition", []any{"entity", entity, "id", id, "from", from, "to", to}, args)
}

// Swallowed records a best-effort step (notification, email, gateway) whose
// failure does not fail the operation that triggered it.
func Swallowed(operation string, err error, args ...any) {
	emit(slog.LevelWarn, "⚠ Best-effort step failed", []any{"operation", operation, "error", err}, args)
}
