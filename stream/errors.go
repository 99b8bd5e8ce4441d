package stream

import (
	"errors"
	"fmt"

	"node.town/asrbench/eventstream"
	"node.town/asrbench/transcript"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrAuthExpired    = errors.New("signed url expired")
	ErrConnectTimeout = errors.New("connect timeout")
	ErrFrameIntegrity = eventstream.ErrFrameIntegrity
	ErrTransport      = errors.New("stream transport error")
)

// Error reports a failed session. Partial holds whatever was assembled
// before the failure.
type Error struct {
	Kind    error
	State   State
	Partial transcript.Result
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (state %s)", e.Kind, e.State)
	}
	return fmt.Sprintf("%v (state %s): %v", e.Kind, e.State, e.Err)
}

// Unwrap exposes both the kind and the cause, so errors.Is works against
// the sentinels above as well as underlying errors like io.EOF.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	// a corrupt frame fails the transport as well
	if e.Kind == ErrFrameIntegrity {
		errs = append(errs, ErrTransport)
	}
	return errs
}

// PartialResult extracts the partial result from an error returned by
// Session.Run, if it carries one.
func PartialResult(err error) (transcript.Result, bool) {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Partial, true
	}
	return transcript.Result{}, false
}

// HandshakeError is returned by dialers when the server refused the
// connection upgrade.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
