package interop

import (
	"errors"
	"sync"
)

// Side names which API a Lock serializes.
type Side int

const (
	// SideNative is the API that allocated the memory.
	SideNative Side = iota
	// SideForeign is the API that registered or imported it.
	SideForeign
)

func (s Side) String() string {
	if s == SideNative {
		return "native"
	}
	return "foreign"
}

// LockState is the state of a lock token.
type LockState int

const (
	StateUnregistered LockState = iota
	StateUnlocked
	StateLocked
	StateDeregistered
)

func (s LockState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	case StateDeregistered:
		return "deregistered"
	}
	return "invalid"
}

// Ownership selects how a token is held.
type Ownership int

const (
	// OwnershipShared locks and unlocks around every access.
	OwnershipShared Ownership = iota
	// OwnershipExclusive holds the lock for the rest of the token's life;
	// the other API is stalled until the token is closed.
	OwnershipExclusive
)

func (o Ownership) String() string {
	if o == OwnershipExclusive {
		return "exclusive"
	}
	return "shared"
}

type lockDriver interface {
	lock() error
	unlock() error
	release() error
}

// Lock serializes access to shared texture memory for one API. It is not
// reentrant and has no timeout. A Lock is meant to be driven from the
// render thread that owns the graphics context.
type Lock struct {
	mu    sync.Mutex
	side  Side
	drv   lockDriver
	state LockState
	own   Ownership
}

func newLock(side Side, drv lockDriver) *Lock {
	return &Lock{side: side, drv: drv, state: StateUnlocked}
}

func (l *Lock) Side() Side { return l.side }

func (l *Lock) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lock) Ownership() Ownership {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.own
}

// Lock blocks until the other API released the memory. Locking a held
// shared token returns ErrLockHeld; on an exclusive token it is a no-op.
func (l *Lock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockLocked()
}

func (l *Lock) lockLocked() error {
	switch l.state {
	case StateUnregistered, StateDeregistered:
		return ErrDeregistered
	case StateLocked:
		if l.own == OwnershipExclusive {
			return nil
		}
		return ErrLockHeld
	}
	if err := l.drv.lock(); err != nil {
		return newError(KindLock, l.side.String()+" lock", err)
	}
	l.state = StateLocked
	return nil
}

// Unlock releases the memory to the other API. It is a no-op on an
// exclusive token.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateUnregistered, StateDeregistered:
		return ErrDeregistered
	case StateUnlocked:
		return ErrNotLocked
	}
	if l.own == OwnershipExclusive {
		return nil
	}
	if err := l.drv.unlock(); err != nil {
		return newError(KindLock, l.side.String()+" unlock", err)
	}
	l.state = StateUnlocked
	return nil
}

// ClaimExclusive takes the lock, if not already held, and keeps it until
// the token is closed.
func (l *Lock) ClaimExclusive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateUnlocked {
		if err := l.lockLocked(); err != nil {
			return err
		}
	}
	if l.state != StateLocked {
		return ErrDeregistered
	}
	l.own = OwnershipExclusive
	return nil
}

// With runs fn while holding the lock.
func (l *Lock) With(fn func() error) error {
	if err := l.Lock(); err != nil {
		return err
	}
	ferr := fn()
	return errors.Join(ferr, l.Unlock())
}

func (l *Lock) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateDeregistered {
		return nil
	}
	var errs []error
	if l.state == StateLocked {
		if err := l.drv.unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.drv.release(); err != nil {
		errs = append(errs, err)
	}
	l.state = StateDeregistered
	return errors.Join(errs...)
}
