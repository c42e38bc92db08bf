package zplbox

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds reported by the library.
const (
	// KindInvalidInput covers bad source references, unreadable inline data,
	// zero-sized images and unparsable printer addresses.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindRenderFailure is reported when a renderer could not produce a bitmap.
	KindRenderFailure Kind = "RENDER_FAILURE"
	// KindMalformedRaster is reported for rasters whose storage does not
	// match their declared geometry.
	KindMalformedRaster Kind = "MALFORMED_RASTER"
	// KindDeliveryTimeout is reported when connecting or writing to a
	// printer exceeds its deadline.
	KindDeliveryTimeout Kind = "DELIVERY_TIMEOUT"
	// KindDeliveryFailed covers refused connections, resets and other
	// transport errors.
	KindDeliveryFailed Kind = "DELIVERY_FAILED"
)

// ErrClosed is returned when attempting to use a closed renderer or pipeline.
var ErrClosed = errors.New("zplbox: closed")

// Error is a structured pipeline error.
type Error struct {
	Kind     Kind
	Message  string
	Endpoint string // printer address, delivery failures only
	Cause    error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Endpoint != "" {
		msg += " (" + e.Endpoint + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the given kind and formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error of the given kind around cause.
func WrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the human readable part of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}
