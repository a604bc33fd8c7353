package goSubmit

import (
	"context"
	"log/slog"
)

type logAttrsContextKey struct{}

// WithLogAttrs attaches attributes that the Engine adds to every log line
// it writes for calls made with ctx. Transports use it for connection-level
// fields such as the remote address.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := logAttrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, logAttrsContextKey{}, merged)
}

func logAttrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	attrs, _ := ctx.Value(logAttrsContextKey{}).([]slog.Attr)
	// Capacity is capped so a caller's append never writes into the shared array.
	return attrs[:len(attrs):len(attrs)]
}
