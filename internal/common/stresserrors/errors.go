// Package stresserrors contains the errors raised while driving load against the annotation service.
//
// Transient "not yet" failures never surface as errors of their own: the poller absorbs them. Everything else is
// one of the types below, wrapped with github.com/pkg/errors so that callers can recover the type with errors.As
// and loggers can print the stack trace recorded where the error was created.
package stresserrors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when a bounded wait exceeded its deadline.
type ErrTimeout struct {
	// What was being waited for, e.g., "project stress-1a2b3c4d to become visible"
	Awaiting string
	// The configured bound
	Timeout time.Duration
	// Time actually spent waiting
	Elapsed time.Duration
}

func (err *ErrTimeout) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s (timeout %s)", err.Elapsed, err.Awaiting, err.Timeout)
}

// ErrCreationFailed indicates that the remote service refused to create a resource, or accepted the request
// without returning a usable identifier. Nothing is deleted for such a resource.
type ErrCreationFailed struct {
	Type  string // Resource type, e.g., "project" or "account"
	Name  string // Requested name
	Cause error
}

func (err *ErrCreationFailed) Error() string {
	if err.Cause == nil {
		return fmt.Sprintf("failed to create %s %q", err.Type, err.Name)
	}
	return fmt.Sprintf("failed to create %s %q: %s", err.Type, err.Name, err.Cause)
}

func (err *ErrCreationFailed) Unwrap() error {
	return err.Cause
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "pollInterval"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrUnauthenticated is returned when the service rejects credentials or a session token.
type ErrUnauthenticated struct {
	Username string
	Message  string
}

func (err *ErrUnauthenticated) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("authentication failed for user %q", err.Username)
	}
	return fmt.Sprintf("authentication failed for user %q; %s", err.Username, err.Message)
}

// ErrUnexpectedStatus is returned by the HTTP client for any non-2xx response not covered by a more specific type.
type ErrUnexpectedStatus struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (err *ErrUnexpectedStatus) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("%s %s returned status %d", err.Method, err.Path, err.StatusCode)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", err.Method, err.Path, err.StatusCode, err.Body)
}

// IsTimeout returns true if any error in the chain is an *ErrTimeout.
func IsTimeout(err error) bool {
	var e *ErrTimeout
	return errors.As(err, &e)
}

// IsNotFound returns true if any error in the chain is an *ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

// IsCreationFailed returns true if any error in the chain is an *ErrCreationFailed.
func IsCreationFailed(err error) bool {
	var e *ErrCreationFailed
	return errors.As(err, &e)
}
