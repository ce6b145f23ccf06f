package ctxlogger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var fieldsKey ctxKey

// AppendCtx returns a context carrying attr in addition to any attrs
// already attached by previous calls.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if attrs, ok := parent.Value(fieldsKey).([]slog.Attr); ok {
		newAttrs := make([]slog.Attr, len(attrs), len(attrs)+1)
		copy(newAttrs, attrs)
		return context.WithValue(parent, fieldsKey, append(newAttrs, attr))
	}

	return context.WithValue(parent, fieldsKey, []slog.Attr{attr})
}

// ContextHandler emits every attr attached to the record's context
// via AppendCtx.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(fieldsKey).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, r)
}
