package interop

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the interop subsystem.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeviceCreation
	KindInteropUnsupported
	KindAllocation
	KindExport
	KindDuplication
	KindOpenResource
	KindRegistration
	KindLock
)

func (k Kind) String() string {
	switch k {
	case KindDeviceCreation:
		return "device creation"
	case KindInteropUnsupported:
		return "interop unsupported"
	case KindAllocation:
		return "allocation"
	case KindExport:
		return "export"
	case KindDuplication:
		return "duplication"
	case KindOpenResource:
		return "open resource"
	case KindRegistration:
		return "registration"
	case KindLock:
		return "lock"
	}
	return "unknown"
}

// Sentinels usable with errors.Is. Any *Error of the same Kind matches.
var (
	ErrDeviceCreation     = &Error{Kind: KindDeviceCreation}
	ErrInteropUnsupported = &Error{Kind: KindInteropUnsupported}
	ErrAllocation         = &Error{Kind: KindAllocation}
	ErrExport             = &Error{Kind: KindExport}
	ErrDuplication        = &Error{Kind: KindDuplication}
	ErrOpenResource       = &Error{Kind: KindOpenResource}
	ErrRegistration       = &Error{Kind: KindRegistration}
)

// Lock state errors.
var (
	ErrLockHeld     = errors.New("interop: lock already held")
	ErrNotLocked    = errors.New("interop: lock not held")
	ErrDeregistered = errors.New("interop: lock token deregistered")
	ErrClosed       = errors.New("interop: context closed")
)

// Error is returned by every fallible operation of a Context.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return "interop: " + e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("interop: %s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("interop: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("interop: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether an import failure may succeed with a freshly
// polled descriptor: the owner may have restarted and republished.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindDuplication, KindOpenResource:
		return true
	}
	return false
}
