package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const maxErrorBodySnippet = 256

// RemoteError is returned when Crater answers with a non-success status other
// than the 401 handled by the session retry policy.
type RemoteError struct {
	// Method and Path identify the failed request.
	Method string
	Path   string
	// Status is the HTTP status code returned by Crater.
	Status int
	// Message is the Laravel "message" field, when present.
	Message string
	// Fields carries per-field validation messages from a 422 response.
	Fields map[string][]string
	// Body contains the raw response body bytes for additional diagnostics.
	Body []byte
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "crater: %s %s: status %d", e.Method, e.Path, e.Status)
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case len(e.Body) > 0:
		snippet := strings.TrimSpace(string(e.Body))
		if len(snippet) > maxErrorBodySnippet {
			snippet = snippet[:maxErrorBodySnippet] + "..."
		}
		b.WriteString(": ")
		b.WriteString(snippet)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	return b.String()
}

type laravelError struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

func newRemoteError(method, path string, status int, body []byte) *RemoteError {
	remote := &RemoteError{Method: method, Path: path, Status: status, Body: body}
	if len(body) == 0 {
		return remote
	}
	var decoded laravelError
	if err := json.Unmarshal(body, &decoded); err != nil {
		return remote
	}
	remote.Message = strings.TrimSpace(decoded.Message)
	if remote.Message == "" {
		remote.Message = strings.TrimSpace(decoded.Error)
	}
	if len(decoded.Errors) > 0 {
		remote.Fields = decoded.Errors
	}
	return remote
}
