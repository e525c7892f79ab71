package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no session exists for a key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrFlowNotFound is returned when a project has no stored flow.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowNotActive is returned when an event targets a project without an active flow.
	ErrFlowNotActive = errors.New("flow not active")

	// ErrFlowVersionNotFound is returned when a published graph version is missing.
	ErrFlowVersionNotFound = errors.New("flow version not found")

	// ErrSessionLockTimeout is returned when the per-session lock could not be acquired in time.
	ErrSessionLockTimeout = errors.New("session lock timeout")

	// ErrChannelNotFound is returned when a channel address is not bound to any project.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrInputTooLarge is returned when inbound text exceeds the configured limit.
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")

	// ErrInvalidUTF8 is returned when inbound text is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("input contains invalid utf-8")

	// ErrInvalidFlow is returned when activation is refused by the validator.
	ErrInvalidFlow = errors.New("flow failed validation")
)

// DanglingReferenceError reports a session pointing at a node absent from its graph.
type DanglingReferenceError struct {
	NodeID       string
	GraphVersion string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("node %q not found in graph version %s", e.NodeID, e.GraphVersion)
}

// StaleGraphError reports a session captured on a different graph version than the one supplied.
type StaleGraphError struct {
	SessionVersion string
	GraphVersion   string
}

func (e *StaleGraphError) Error() string {
	return fmt.Sprintf("session captured graph %s, got %s", e.SessionVersion, e.GraphVersion)
}

// ExternalCallError reports an apiCall that failed after all attempts.
type ExternalCallError struct {
	RequestName string
	Attempts    int
	StatusCode  int
	Err         error
}

func (e *ExternalCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("external call %q failed after %d attempt(s): status %d", e.RequestName, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("external call %q failed after %d attempt(s): %v", e.RequestName, e.Attempts, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// StatusError is returned by invokers for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Retryable reports whether the status warrants another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// DeliveryError reports an outbound send that the gateway could not complete.
type DeliveryError struct {
	SenderID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.SenderID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
