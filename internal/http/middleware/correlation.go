package middleware

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/quoteflow-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"

	maxCorrelationIDLen = 128
)

// Correlation gives every request a request id and a trace id. Both are
// echoed as response headers and stored on the request context, where the
// logger and job enqueue pick them up.
//
// The trace id of an active span wins so log lines join exported traces.
// Otherwise a well-formed X-Trace-Id is kept, and failing that the request
// id doubles as the trace id.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := inboundID(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else if id := inboundID(c.GetHeader(HeaderTraceID)); id != "" {
			traceID = id
		} else {
			traceID = requestID
		}

		td := &ctxutil.TraceData{TraceID: traceID, RequestID: requestID}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Header(HeaderTraceID, traceID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// inboundID accepts a client-supplied id only if it is short and printable;
// anything else is dropped so it cannot pollute log lines or headers.
func inboundID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxCorrelationIDLen {
		return ""
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || r == ' ' {
			return ""
		}
	}
	return id
}
