package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// TracePayload returns trace fields suitable for embedding into a job payload.
func TracePayload(ctx context.Context) map[string]any {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := map[string]any{}
	if td.TraceID != "" {
		out["trace_id"] = td.TraceID
	}
	if td.RequestID != "" {
		out["request_id"] = td.RequestID
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
