// Package ptperr defines the error taxonomy shared by transport, session, scanner
// and eventsource: a small set of error kinds (spec §7) callers can branch on
// instead of matching strings.
package ptperr

import "errors"

// Kind classifies an error into one of the taxonomy buckets from spec §7.
type Kind int

const (
	KindTransport Kind = iota
	KindProtocol
	KindState
	KindVendor
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	case KindVendor:
		return "vendor"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a typed, human-readable error carrying a Kind and an optional wrapped
// cause. The surrounding application translates these for display (spec §7:
// "the core does not render; it emits typed errors with a human-readable
// description").
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// Retryable is meaningful only for KindTransport errors raised while dialing
	// (spec §4.4 stage 1): connection-refused and generic timeouts are retryable,
	// host/network-unreachable and permission-denied are not.
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel state errors (spec §7: "already_connected", "not_connected", "session_closed").
var (
	ErrAlreadyConnected = New(KindState, "already connected")
	ErrNotConnected     = New(KindState, "not connected")
	ErrSessionClosed    = New(KindState, "session closed")
)

// Sentinel protocol errors (spec §7).
var (
	ErrTransactionMismatch = New(KindProtocol, "transaction id mismatch")
	ErrSizeMismatch        = New(KindProtocol, "data phase size mismatch")
	ErrResponseNotOK       = New(KindProtocol, "operation response code not OK")
)

// Sentinel transport errors (spec §7).
var (
	ErrReadTimeout  = New(KindTransport, "read timed out")
	ErrWriteTimeout = New(KindTransport, "write timed out")
	ErrConnClosed   = New(KindTransport, "connection closed")
)

// Sentinel vendor errors (spec §7).
var ErrSonyGateNeverOpened = New(KindVendor, "sony objectInMemory gate never opened within deadline")

// ErrCancelled is returned when an operation was aborted by caller cancellation.
var ErrCancelled = New(KindCancelled, "cancelled")

// WrapDial builds a KindTransport error carrying the Retryable verdict the Scanner
// needs to decide whether to attempt this candidate IP again (spec §4.4, stage 1).
func WrapDial(message string, cause error, retryable bool) *Error {
	return &Error{Kind: KindTransport, Message: message, Cause: cause, Retryable: retryable}
}

// Retryable reports whether err is a dial failure the Scanner should retry.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransport && e.Retryable
	}
	return false
}
