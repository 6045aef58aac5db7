package session

import (
	"fmt"
	"strings"
)

// ConfigurationError reports that no usable credentials are configured. It is
// returned before any network request is made.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "session: no credentials configured"
	}
	return "session: " + e.Reason
}

// AuthenticationError reports a failed login or an exhausted retry budget
// after the Crater API rejected a refreshed token.
type AuthenticationError struct {
	// Status is the HTTP status of the rejected request, when one was received.
	Status int
	// Reason is a human readable description of the failure.
	Reason string
	// Err is the underlying transport or decode error, if any.
	Err error
}

func (e *AuthenticationError) Error() string {
	if e == nil {
		return "authentication failed"
	}
	msg := "authentication failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
