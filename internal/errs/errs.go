// Package errs defines the error categories surfaced across the engine, per
// the error handling design: validation, routing, transport, protocol, venue
// reject, and resource exhaustion. Components wrap underlying errors with
// fmt.Errorf("...: %w", err) and attach a Code so callers can branch on kind
// without string matching.
package errs

import "fmt"

// Code is one of the six error categories.
type Code int

const (
	// Validation: caller input violates a pre-send invariant. Returned
	// synchronously; no wire activity.
	Validation Code = iota
	// Routing: no healthy session available for the requested venue.
	Routing
	// Transport: socket or TLS failure during send or read.
	Transport
	// Protocol: inbound bytes violate FIX framing, checksum, or
	// sequence-number contracts.
	Protocol
	// VenueReject: the counterparty rejected a session, order, or cancel.
	VenueReject
	// Resource: pool or buffer exhaustion, visible only via metrics.
	Resource
)

func (c Code) String() string {
	switch c {
	case Validation:
		return "validation"
	case Routing:
		return "routing"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case VenueReject:
		return "venue_reject"
	case Resource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a category.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a categorized error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a category to an existing error.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error; ok is false otherwise.
func CodeOf(err error) (code Code, ok bool) {
	var e *Error
	for err != nil {
		if as, match := err.(*Error); match {
			e = as
			break
		}
		u, unwraps := err.(interface{ Unwrap() error })
		if !unwraps {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Code, true
}
