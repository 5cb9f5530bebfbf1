// internal/browser/errors.go
package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	errSessionClosed  = errors.New("session is closed")
	errManagerClosed  = errors.New("manager is shut down")
	errNoTarget       = errors.New("no selector or text provided")
	errElementMissing = errors.New("element not found in DOM")
	errNotSelect      = errors.New("element is not a select")
	errOptionMissing  = errors.New("no matching option")
)

// ErrorKind groups session failures so callers can decide whether a
// different selector candidate is worth trying.
type ErrorKind string

const (
	// KindTimeout marks operations that ran out of time waiting for the
	// page or an element to reach the required state.
	KindTimeout ErrorKind = "timeout"
	// KindNotFound marks elements that do not exist in the live DOM.
	KindNotFound ErrorKind = "not_found"
	// KindNavigation marks page-level load and navigation failures.
	KindNavigation ErrorKind = "navigation"
	// KindProtocol marks CDP transport or evaluation failures.
	KindProtocol ErrorKind = "protocol"
)

// SessionError is the error type returned by every Session operation.
// Kind separates "element never showed up, try the next candidate" from
// "the browser itself is broken".
type SessionError struct {
	Kind     ErrorKind
	Op       string
	Selector string
	Err      error
}

func (e *SessionError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("browser %s %q: %s: %v", e.Op, e.Selector, e.Kind, e.Err)
	}
	return fmt.Sprintf("browser %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline rather than a hard
// protocol or DOM error.
func (e *SessionError) Timeout() bool { return e.Kind == KindTimeout }

// IsKind reports whether err is a SessionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == kind
}

// IsRecoverable reports whether the error leaves the session usable for
// further operations. Timeouts and missing elements are local to one
// interaction; navigation and protocol failures usually are not.
func IsRecoverable(err error) bool {
	var se *SessionError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindTimeout || se.Kind == KindNotFound
}

// wrapErr classifies err into a SessionError. Deadline expiry always wins
// over the fallback kind so callers see timeouts as timeouts regardless of
// which action hit them.
func wrapErr(op, selector string, err error, fallback ErrorKind) error {
	if err == nil {
		return nil
	}
	var se *SessionError
	if errors.As(err, &se) {
		return err
	}
	kind := fallback
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &SessionError{Kind: kind, Op: op, Selector: selector, Err: err}
}
