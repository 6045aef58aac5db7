package mcp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"pkt.systems/cratermcp/client"
	"pkt.systems/cratermcp/session"
)

// ErrorKind is the category of a failed tool invocation.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindConfiguration  ErrorKind = "configuration"
	ErrorKindRemote         ErrorKind = "remote"
	ErrorKindInternal       ErrorKind = "internal"
)

// ToolError is the failure half of a Result. Message is the text shown to
// the agent after the tool's action prefix.
type ToolError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Err        error
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError reports tool arguments that fail schema or record checks.
// The Crater API is never called when it is returned.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "invalid arguments"
	}
	return "invalid arguments: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// toolErrorEnvelope is attached as structured content to every error result so
// agents can branch on error_code without parsing text.
type toolErrorEnvelope struct {
	ErrorCode  string `json:"error_code"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

func (e *ToolError) envelope() toolErrorEnvelope {
	return toolErrorEnvelope{
		ErrorCode:  e.Code,
		Kind:       string(e.Kind),
		Detail:     e.Message,
		Retryable:  e.Retryable,
		HTTPStatus: e.HTTPStatus,
	}
}

func classifyToolError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var already *ToolError
	if errors.As(err, &already) {
		return already
	}
	te := &ToolError{
		Kind:    ErrorKindInternal,
		Code:    "internal",
		Message: strings.TrimSpace(err.Error()),
		Err:     err,
	}

	var validationErr *ValidationError
	var cfgErr *session.ConfigurationError
	var authErr *session.AuthenticationError
	var remoteErr *client.RemoteError
	var netErr net.Error
	switch {
	case errors.As(err, &validationErr):
		te.Kind = ErrorKindValidation
		te.Code = "invalid_argument"
	case errors.As(err, &cfgErr):
		te.Kind = ErrorKindConfiguration
		te.Code = "not_configured"
	case errors.As(err, &authErr):
		te.Kind = ErrorKindAuthentication
		te.Code = "unauthenticated"
		te.HTTPStatus = authErr.Status
	case errors.As(err, &remoteErr):
		te.Kind = ErrorKindRemote
		te.HTTPStatus = remoteErr.Status
		te.Code = remoteCode(remoteErr.Status)
		switch {
		case remoteErr.Status == http.StatusTooManyRequests,
			remoteErr.Status == http.StatusRequestTimeout,
			remoteErr.Status >= 500:
			te.Retryable = true
		}
	case errors.Is(err, context.DeadlineExceeded):
		te.Kind = ErrorKindRemote
		te.Code = "timeout"
		te.Retryable = true
	case errors.Is(err, context.Canceled):
		te.Kind = ErrorKindRemote
		te.Code = "canceled"
	case errors.As(err, &netErr):
		te.Kind = ErrorKindRemote
		te.Code = "unavailable"
		te.Retryable = true
		if netErr.Timeout() {
			te.Code = "timeout"
		}
	}
	return te
}

func remoteCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "invalid_argument"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	return "http_" + strconv.Itoa(status)
}
