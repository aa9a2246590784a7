package logging

import (
	"context"
	"log/slog"
)

// redactingHandler wraps an slog.Handler and redacts credential-shaped
// attributes (Bearer tokens, Basic auth headers, passwords, sensitive
// keys) from every record before it reaches the wrapped handler. This
// is what makes redaction apply to log lines written through the
// ambient slog.Default() logger, not just through *Logger's own
// Debug/Info/Warn/Error methods — every package in this repo that logs
// via slog.Default().With(...) goes through this handler once it is
// installed with slog.SetDefault.
type redactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func newRedactingHandler(next slog.Handler, redactor *Redactor) slog.Handler {
	if redactor == nil {
		return next
	}
	return &redactingHandler{next: next, redactor: redactor}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	newRecord := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, newRecord)
}

func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if h.redactor.isSensitiveKey(a.Key) {
		return slog.Any(a.Key, h.redactor.maskValue(a.Value.Any()))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.redactor.RedactString(a.Value.String()))
	}
	return a
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
