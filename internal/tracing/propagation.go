package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns base with the trace id, call id and method carried by ctx
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	if tc.TraceID == "" && tc.CallID == "" && tc.Method == "" {
		return base
	}

	lc := base.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.CallID != "" {
		lc = lc.Str("call_id", tc.CallID)
	}
	if tc.Method != "" {
		lc = lc.Str("method", tc.Method)
	}
	return lc.Logger()
}

// Detach returns a background context carrying the tracing values of ctx but none of
// its deadline or cancellation. Used when work outlives the request that started it.
func Detach(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
