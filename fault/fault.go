// Package fault classifies failures into the handful of kinds the UI reacts to.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Unknown is returned by KindOf for errors that were never classified.
	Unknown Kind = iota
	// Precondition failures are rejected locally and never reach the network.
	Precondition
	// Transport failures mean the request could not complete.
	Transport
	// Rejection means a service answered and explicitly declined.
	Rejection
	// Device failures come from the audio capture device.
	Device
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Transport:
		return "transport"
	case Rejection:
		return "rejection"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus an optional server-supplied message.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	s := e.Op
	if e.Err != nil {
		if s != "" {
			s += ": "
		}
		s += e.Err.Error()
	}
	if e.Msg != "" {
		if s != "" {
			s += ": "
		}
		s += e.Msg
	}
	if s == "" {
		s = e.Kind.String() + " failure"
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

var fallbacks = map[Kind]string{
	Precondition: "Operation not available right now",
	Transport:    "Could not reach the server. Please try again.",
	Rejection:    "Unknown error",
	Device:       "Microphone unavailable",
}

// Message returns the text shown to the user for err: the first
// server-supplied message in the chain, else a per-kind fallback.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if msg := serverMessage(err); msg != "" {
		return msg
	}
	if kind := KindOf(err); kind == Precondition {
		return err.Error()
	} else if msg, ok := fallbacks[kind]; ok {
		return msg
	}
	return err.Error()
}

// serverMessage walks err's tree depth-first, following joined and
// multi-%w errors as well as single-wrap chains.
func serverMessage(err error) string {
	switch e := err.(type) {
	case nil:
		return ""
	case *Error:
		if e.Msg != "" {
			return e.Msg
		}
		return serverMessage(e.Err)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if msg := serverMessage(inner); msg != "" {
				return msg
			}
		}
		return ""
	default:
		return serverMessage(errors.Unwrap(err))
	}
}
