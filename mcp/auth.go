package mcp

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/xid"

	"pkt.systems/pslog"
)

const (
	headerAuthorization = "Authorization"
	headerMCPToken      = "X-MCP-Token"
	headerRequestID     = "X-Request-ID"

	unauthorizedMessage = "Unauthorized: Invalid MCP Server Token"
)

// TransportAuthError describes an HTTP request rejected by the shared-secret
// check. It is logged and answered with 401; no tool runs.
type TransportAuthError struct {
	Path      string
	RequestID string
	Reason    string
}

func (e *TransportAuthError) Error() string {
	return "mcp transport: " + e.Reason + " (" + e.Path + ")"
}

// SharedSecret is the gateway token. The zero value disables the check. It is
// safe for concurrent use and may be replaced while the server runs.
type SharedSecret struct {
	value atomic.Pointer[string]
}

// NewSharedSecret returns a secret initialised to value.
func NewSharedSecret(value string) *SharedSecret {
	s := &SharedSecret{}
	s.Set(value)
	return s
}

// Set replaces the secret. An empty value disables the check.
func (s *SharedSecret) Set(value string) {
	value = strings.TrimSpace(value)
	s.value.Store(&value)
}

// Enabled reports whether requests must present the secret.
func (s *SharedSecret) Enabled() bool {
	return s.current() != ""
}

// Matches reports whether presented equals the secret. It always reports true
// when the secret is empty.
func (s *SharedSecret) Matches(presented string) bool {
	want := s.current()
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(want)) == 1
}

func (s *SharedSecret) current() string {
	if s == nil {
		return ""
	}
	if p := s.value.Load(); p != nil {
		return *p
	}
	return ""
}

// presentedToken extracts the token from Authorization, falling back to
// X-MCP-Token, with an optional Bearer prefix removed.
func presentedToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(headerAuthorization))
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get(headerMCPToken))
	}
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "Bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

func requireSharedSecret(secret *SharedSecret, logger pslog.Logger, metrics *transportMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(headerRequestID))
		if reqID == "" {
			reqID = xid.New().String()
		}
		w.Header().Set(headerRequestID, reqID)
		reqLog := logger.With("req_id", reqID, "method", r.Method, "path", r.URL.Path)

		if !secret.Matches(presentedToken(r)) {
			authErr := &TransportAuthError{Path: r.URL.Path, RequestID: reqID, Reason: "shared secret mismatch"}
			metrics.recordRejected(r.Context(), r.URL.Path)
			reqLog.Warn("mcp.transport.auth.rejected", "remote", r.RemoteAddr, "error", authErr)
			writeUnauthorized(w)
			return
		}
		reqLog.Trace("mcp.transport.request")
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": unauthorizedMessage})
}
