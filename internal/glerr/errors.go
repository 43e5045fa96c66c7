// Package glerr implements GroundLift's uniform error stack: every fallible
// operation in the core returns either nil or a chain of frames, each one
// naming the layer it came from and optionally wrapping a deeper cause.
//
// The chain is built bottom-up (the socket layer pushes the first frame, the
// codec or state machine above it pushes another) and is meant to be drained
// top-down by a single-threaded caller. Each Frame links to its cause
// directly; github.com/pkg/errors (the teacher codebase's error package)
// supplies the Cause and As helpers used to inspect a chain.
package glerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Layer tags the subsystem that produced an error frame.
type Layer string

const (
	// LayerSock marks errors raised by the socket abstraction.
	LayerSock Layer = "SOCK"
	// LayerGL marks errors raised by GroundLift's own protocol/state-machine logic.
	LayerGL Layer = "GL"
)

// Code enumerates the stable error and event codes a caller can switch on.
type Code int

const (
	OK Code = iota

	// Socket layer errors (spec.md 4.1).
	ESOCKET
	ESETSOCKOPT
	EBIND
	ELISTEN
	ECLOSE
	ESEND
	ERECV
	ECONNECT
	ESHUTDOWN
	EIOCTL
	EIFACEGETIFADDR

	// Socket layer events, not failures, but carried through the same chain
	// so a caller can type-switch on them without a second error model.
	TIMEOUT
	CONN_SHUTDOWN
	CONN_CLOSED

	// GroundLift protocol/state errors.
	EINVALIDPACKET
	EINVALIDSTATEOPCODE
	EUNAUTHORIZED
	EDECLINED
	EFILESYSTEM
	ECONCURRENCY
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case ESOCKET:
		return "ESOCKET"
	case ESETSOCKOPT:
		return "ESETSOCKOPT"
	case EBIND:
		return "EBIND"
	case ELISTEN:
		return "ELISTEN"
	case ECLOSE:
		return "ECLOSE"
	case ESEND:
		return "ESEND"
	case ERECV:
		return "ERECV"
	case ECONNECT:
		return "ECONNECT"
	case ESHUTDOWN:
		return "ESHUTDOWN"
	case EIOCTL:
		return "EIOCTL"
	case EIFACEGETIFADDR:
		return "EIFACEGETIFADDR"
	case TIMEOUT:
		return "TIMEOUT"
	case CONN_SHUTDOWN:
		return "CONN_SHUTDOWN"
	case CONN_CLOSED:
		return "CONN_CLOSED"
	case EINVALIDPACKET:
		return "EINVALIDPACKET"
	case EINVALIDSTATEOPCODE:
		return "EINVALIDSTATEOPCODE"
	case EUNAUTHORIZED:
		return "EUNAUTHORIZED"
	case EDECLINED:
		return "EDECLINED"
	case EFILESYSTEM:
		return "EFILESYSTEM"
	case ECONCURRENCY:
		return "ECONCURRENCY"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Frame is one link in the error chain.
type Frame struct {
	Layer   Layer
	Code    Code
	Message string
	cause   error
}

// Error implements the error interface, printing deepest-first per spec.md 7.
func (f *Frame) Error() string {
	var b strings.Builder
	for _, line := range f.lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// lines returns this frame's chain rendered deepest cause first.
func (f *Frame) lines() []string {
	var deeper []string
	if f.cause != nil {
		if cf, ok := f.cause.(*Frame); ok {
			deeper = cf.lines()
		} else {
			deeper = []string{f.cause.Error()}
		}
	}
	mine := fmt.Sprintf("[%s %s] %s", f.Layer, f.Code, f.Message)
	return append(deeper, mine)
}

// Cause returns the deepest non-*Frame error in the chain, or nil if every
// frame in the chain is itself a *Frame (i.e. there's no foreign cause).
func (f *Frame) Cause() error {
	cur := f
	for cur.cause != nil {
		next, ok := cur.cause.(*Frame)
		if !ok {
			return errors.Cause(cur.cause)
		}
		cur = next
	}
	return nil
}

// Unwrap supports errors.Is/errors.As over chains built with New/Wrap.
func (f *Frame) Unwrap() error {
	return f.cause
}

// New creates a root frame with no deeper cause.
func New(layer Layer, code Code, message string) *Frame {
	return &Frame{Layer: layer, Code: code, Message: message}
}

// Newf creates a root frame with a formatted message.
func Newf(layer Layer, code Code, format string, args ...interface{}) *Frame {
	return New(layer, code, fmt.Sprintf(format, args...))
}

// Wrap pushes a new frame onto an existing error, preserving it as the cause.
// A nil cause yields a root frame, mirroring errors.Wrap's nil-passthrough
// convention from the teacher's pkg/errors usage.
func Wrap(cause error, layer Layer, code Code, message string) *Frame {
	if cause == nil {
		return New(layer, code, message)
	}
	return &Frame{Layer: layer, Code: code, Message: message, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, layer Layer, code Code, format string, args ...interface{}) *Frame {
	return Wrap(cause, layer, code, fmt.Sprintf(format, args...))
}

// CodeOf walks the chain looking for the outermost *Frame's code; returns
// (OK, true) if err is nil, or (OK, false) if no *Frame is in the chain.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return OK, true
	}
	var f *Frame
	if errors.As(err, &f) {
		return f.Code, true
	}
	return OK, false
}

// IsEvent reports whether code is one of the socket layer's event codes
// (TIMEOUT, CONN_SHUTDOWN, CONN_CLOSED) rather than a failure. Callers one
// layer up (obex's packet transfer helpers) use this to decide whether to
// pass a socket error straight through so a state machine further up the
// stack can still switch on its original code, instead of burying it under
// a new frame the way a genuine failure would be (spec.md 4.4.2 edge
// policy: the receiver and sender both need to see CONN_SHUTDOWN/
// CONN_CLOSED through the recv_packet call that wraps the raw socket recv).
func IsEvent(code Code) bool {
	switch code {
	case TIMEOUT, CONN_SHUTDOWN, CONN_CLOSED:
		return true
	default:
		return false
	}
}
