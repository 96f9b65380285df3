package stompprotocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol client.
var (
	// ErrMalformedFrame indicates frame text whose first line is not a known
	// frame kind. It is fatal to the decode call only.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrNotConnected indicates an operation that needs a session was
	// attempted without one.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates Login was called while a session exists.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotSubscribed indicates an operation on a game that was not joined.
	ErrNotSubscribed = errors.New("not subscribed")

	// ErrAlreadySubscribed indicates Join for a game that is already joined.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrNoSubscriptions indicates a report was attempted before any join.
	ErrNoSubscriptions = errors.New("no active subscriptions")

	// ErrRequestPending indicates a second correlated request was attempted
	// while one is still outstanding.
	ErrRequestPending = errors.New("correlated request already pending")

	// ErrSessionEnded indicates the reader stopped before a reply arrived.
	ErrSessionEnded = errors.New("session ended")
)

// ParseError represents an error that occurred while decoding a frame or
// parsing an address.
type ParseError struct {
	Kind    ParseErrorKind
	Value   string // The invalid value that caused the error
	Message string // Additional context
}

// ParseErrorKind categorizes parsing errors.
type ParseErrorKind int

const (
	// ErrKindUnknownFrame indicates an unrecognized frame kind name.
	ErrKindUnknownFrame ParseErrorKind = iota
	// ErrKindEmptyFrame indicates frame text with no kind line at all.
	ErrKindEmptyFrame
	// ErrKindInvalidAddress indicates a broker address that is not host:port
	// or a ws/wss URL.
	ErrKindInvalidAddress
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrKindUnknownFrame:
		return fmt.Sprintf("unknown frame kind '%s'", e.Value)
	case ErrKindEmptyFrame:
		return "empty frame"
	case ErrKindInvalidAddress:
		return fmt.Sprintf("bad host:port '%s'", e.Value)
	default:
		return fmt.Sprintf("parse error: %s", e.Value)
	}
}

// Is reports frame decode failures as ErrMalformedFrame.
func (e *ParseError) Is(target error) bool {
	if target != ErrMalformedFrame {
		return false
	}
	return e.Kind == ErrKindUnknownFrame || e.Kind == ErrKindEmptyFrame
}

func newUnknownFrameError(name string) error {
	return &ParseError{Kind: ErrKindUnknownFrame, Value: name}
}

func newInvalidAddressError(addr string) error {
	return &ParseError{Kind: ErrKindInvalidAddress, Value: addr}
}

// ConnectionError represents a transport failure.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}

// BrokerError is an ERROR frame received from the broker. It always ends the
// session.
type BrokerError struct {
	Reason string
}

// Error implements the error interface.
func (e *BrokerError) Error() string {
	if e.Reason == "" {
		return "broker error"
	}
	return e.Reason
}

// ProtocolError describes a frame that does not satisfy what its kind
// requires. Receiving one is not fatal; the caller decides.
type ProtocolError struct {
	Kind   FrameKind
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s frame: %s", e.Kind, e.Reason)
}
