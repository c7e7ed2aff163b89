package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned when hosting or joining while a session
	// already exists (or is being set up).
	ErrSessionActive = errors.New("a sync session is already active")

	// ErrNoSession is returned by operations that need a session when
	// there is none.
	ErrNoSession = errors.New("no active sync session")

	// ErrStopped is returned once the engine's Run loop has exited.
	ErrStopped = errors.New("engine stopped")
)

// RuntimeError represents a failure detected while the engine was
// processing an event. Such failures never stop the Run loop; they are
// logged and raised as operator alerts.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Peer identifies the remote station, when there is one.
	Peer string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodePersist indicates a collection could not be saved.
	ErrCodePersist RuntimeErrorCode = "PERSIST_FAILED"

	// ErrCodeLoad indicates the stored collections could not be read.
	ErrCodeLoad RuntimeErrorCode = "LOAD_FAILED"

	// ErrCodeTransport indicates a link or relay failure.
	ErrCodeTransport RuntimeErrorCode = "TRANSPORT_FAILED"

	// ErrCodeProtocol indicates a message that could not be decoded or
	// was not acceptable in the current session state.
	ErrCodeProtocol RuntimeErrorCode = "PROTOCOL_VIOLATION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Peer != "" {
		msg += fmt.Sprintf(" (peer=%s)", e.Peer)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsPersistError returns true if the error is a persistence failure.
// Uses errors.As to handle wrapped errors.
func IsPersistError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodePersist
	}
	return false
}

// IsTransportError returns true if the error is a transport failure.
func IsTransportError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeTransport
	}
	return false
}

// NewPersistError creates a RuntimeError for a failed save of slot.
func NewPersistError(slot string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePersist,
		Message: "failed to save collection",
		Details: map[string]string{"slot": slot},
		Err:     err,
	}
}

// NewLoadError creates a RuntimeError for a store that could not be read.
func NewLoadError(err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeLoad,
		Message: "failed to load stored collections",
		Err:     err,
	}
}

// IsLoadError returns true if the error is a failed load of the store.
func IsLoadError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLoad
	}
	return false
}

// NewTransportError creates a RuntimeError for a link failure with peer.
func NewTransportError(peer string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTransport,
		Message: "sync link failed",
		Peer:    peer,
		Err:     err,
	}
}

// NewProtocolError creates a RuntimeError for a rejected message.
func NewProtocolError(peer, message string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeProtocol,
		Message: message,
		Peer:    peer,
		Err:     err,
	}
}
