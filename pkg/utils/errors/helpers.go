package errors

import (
	"context"
	stderrors "errors"
	"net"
)

// FromError converts any error to an Errno.
// Errnos anywhere in the chain are returned as-is, deadline and network
// timeouts map to ErrUpstreamTimeout, and everything else is wrapped as
// ErrInternal.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	if IsTimeout(err) {
		return ErrUpstreamTimeout.WithCause(err)
	}
	return ErrInternal.WithCause(err)
}

// IsCode reports whether any Errno in err's chain has the given code.
func IsCode(err error, code int) bool {
	var e *Errno
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode returns the code of the first Errno in err's chain, or -1.
func GetCode(err error) int {
	var e *Errno
	if stderrors.As(err, &e) {
		return e.Code
	}
	return -1
}

// IsTimeout reports whether err is a context deadline or a network timeout.
func IsTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// Transport wraps a provider failure as base, promoting timeouts to
// ErrUpstreamTimeout so callers see a 504 instead of a generic 502.
func Transport(base *Errno, provider string, err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	if IsTimeout(err) {
		return ErrUpstreamTimeout.WithMessagef("%s timeout", provider).WithCause(err)
	}
	return base.WithMessagef("%s: %s", base.MessageEN, provider).WithCause(err)
}
