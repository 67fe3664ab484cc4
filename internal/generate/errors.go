package generate

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error is a typed generation failure. Callers branch on Timeout to pick
// the user-visible reply; everything else is a plain backend error.
type Error struct {
	Backend string
	Status  int
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: generation timed out", e.Backend)
	case e.Status != 0:
		return fmt.Sprintf("%s: backend returned HTTP %d: %v", e.Backend, e.Status, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a generation timeout.
func IsTimeout(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Timeout
	}
	return false
}

func wrapTransportError(backend string, err error) *Error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if !timeout && errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &Error{Backend: backend, Timeout: timeout, Err: err}
}
