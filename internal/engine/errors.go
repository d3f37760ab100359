package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running the loop.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the engine sequence number of the affected event, 0 if none.
	Seq int64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine no longer accepts events.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeInvalidEvent indicates an event is missing its payload.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"

	// ErrCodeUnknownEvent indicates an event type the loop cannot route.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Seq > 0 {
		return fmt.Sprintf("%s: %s (seq=%d)", e.Code, e.Message, e.Seq)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStopped returns true if err reports a stopped engine.
// Uses errors.As to handle wrapped errors.
func IsStopped(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

// ErrStopped is returned by calls made after Stop.
var ErrStopped = &RuntimeError{Code: ErrCodeStopped, Message: "engine is stopped"}

func newInvalidEvent(seq int64, msg string) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidEvent, Message: msg, Seq: seq}
}
