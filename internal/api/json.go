package api

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"

    "wavepick/internal/store"
)

const problemContentType = "application/problem+json"

// Problem is an RFC 7807 problem details body.
type Problem struct {
    Type     string `json:"type"`
    Title    string `json:"title"`
    Status   int    `json:"status"`
    Detail   string `json:"detail,omitempty"`
    Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    if w.Header().Get("Content-Type") == "" {
        w.Header().Set("Content-Type", "application/json")
    }
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    w.Header().Set("Content-Type", problemContentType)
    writeJSON(w, status, Problem{
        Type:     "about:blank",
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    })
}

// writeStoreError maps store failures: a missing record is 404, a request
// that ran out of time is 504, anything else is 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, title string, err error) {
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, title, "", r.URL.Path)
    case errors.Is(err, context.DeadlineExceeded):
        writeProblem(w, http.StatusGatewayTimeout, title, err.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
    }
}
