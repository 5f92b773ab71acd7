package problem

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.anchor-platform.dev/"
	traceHeader = "X-Trace-ID"
)

// Details is an RFC 7807 problem document. JSON-RPC failures never use it;
// they are reported inside the RPC response body.
type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Type expands slug into an absolute problem type URI.
func Type(slug string) string {
	return baseTypeURL + strings.TrimPrefix(slug, "/")
}

// New builds a problem, defaulting the title to the status text and the type to about:blank.
func New(status int, problemType, title, detail string) Details {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	return Details{Type: problemType, Title: title, Status: status, Detail: detail}
}

// Write renders a problem for r. The trace id is taken from the request, or
// from the response header set by the trace middleware.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	d := New(status, problemType, title, detail)
	if r != nil {
		d.Instance = r.URL.Path
		d.TraceID = r.Header.Get(traceHeader)
	}
	if d.TraceID == "" {
		d.TraceID = w.Header().Get(traceHeader)
	}
	Render(w, d)
}

func Render(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
