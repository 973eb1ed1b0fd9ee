package metrics

import (
    "net/http"
    "strings"
)

type statusWriter struct {
    http.ResponseWriter
    status int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware.
func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijack).
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RoutePattern maps a request path to a low-cardinality label:
// /v1/waves/abc/events/stream -> /v1/waves/{id}/events/stream.
func RoutePattern(path string) string {
    for _, prefix := range []string{"/v1/waves/", "/v1/subscriptions/", "/v1/admin/webhook-deliveries/"} {
        if !strings.HasPrefix(path, prefix) { continue }
        rest := strings.TrimPrefix(path, prefix)
        if rest == "" { return path }
        if i := strings.Index(rest, "/"); i >= 0 {
            return prefix + "{id}" + rest[i:]
        }
        return prefix + "{id}"
    }
    return path
}
