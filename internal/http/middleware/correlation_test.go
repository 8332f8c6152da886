package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quoteflow-backend/internal/platform/ctxutil"
)

func serveCorrelation(t *testing.T, headers map[string]string) (*httptest.ResponseRecorder, *ctxutil.TraceData) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seen *ctxutil.TraceData
	r := gin.New()
	r.Use(Correlation())
	r.GET("/api/cases", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen == nil {
		t.Fatalf("handler saw no trace data")
	}
	return rec, seen
}

func TestCorrelationKeepsInboundIDs(t *testing.T) {
	rec, td := serveCorrelation(t, map[string]string{
		HeaderRequestID: "req-42",
		HeaderTraceID:   "trace-7",
	})
	if td.RequestID != "req-42" || td.TraceID != "trace-7" {
		t.Fatalf("context ids: %+v", td)
	}
	if rec.Header().Get(HeaderRequestID) != "req-42" || rec.Header().Get(HeaderTraceID) != "trace-7" {
		t.Fatalf("response headers: %v", rec.Header())
	}
}

func TestCorrelationGeneratesIDs(t *testing.T) {
	rec, td := serveCorrelation(t, nil)
	if td.RequestID == "" {
		t.Fatalf("request id not generated")
	}
	if td.TraceID != td.RequestID {
		t.Fatalf("trace id should fall back to the request id: %+v", td)
	}
	if rec.Header().Get(HeaderRequestID) != td.RequestID {
		t.Fatalf("request id not echoed")
	}
}

func TestCorrelationDropsMalformedIDs(t *testing.T) {
	_, td := serveCorrelation(t, map[string]string{
		HeaderRequestID: strings.Repeat("x", maxCorrelationIDLen+1),
		HeaderTraceID:   "bad\tid",
	})
	if len(td.RequestID) > maxCorrelationIDLen || strings.HasPrefix(td.RequestID, "xxx") {
		t.Fatalf("oversized request id kept: %q", td.RequestID)
	}
	if td.TraceID != td.RequestID {
		t.Fatalf("malformed trace id kept: %q", td.TraceID)
	}
}
