package kvfs

import (
	"fmt"
	"strings"
)

// Cap is a set of access capabilities.
type Cap uint8

const (
	CapRead Cap = 1 << iota
	CapWrite
	CapExecute

	CapNone Cap = 0
	CapAll      = CapRead | CapWrite | CapExecute
)

// Contains reports whether every capability in required is also in c.
func (c Cap) Contains(required Cap) bool {
	return c&required == required
}

func (c Cap) String() string {
	var b strings.Builder
	for _, f := range []struct {
		cap Cap
		ch  byte
	}{{CapRead, 'r'}, {CapWrite, 'w'}, {CapExecute, 'x'}} {
		if c&f.cap != 0 {
			b.WriteByte(f.ch)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// CapFromMode returns the owner capabilities encoded in permission bits.
func CapFromMode(mode uint32) Cap {
	var c Cap
	if mode&0o400 != 0 {
		c |= CapRead
	}
	if mode&0o200 != 0 {
		c |= CapWrite
	}
	if mode&0o100 != 0 {
		c |= CapExecute
	}
	return c
}

// CapabilityError reports an access that asked for more than was granted.
type CapabilityError struct {
	Required Cap
	Granted  Cap
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability violation: required %s, granted %s", e.Required, e.Granted)
}

func (e *CapabilityError) Unwrap() error {
	return PermissionDenied
}

// Wrapped binds a value to a fixed capability set. The set never changes
// after construction.
type Wrapped[T any] struct {
	inner   T
	granted Cap
}

func Wrap[T any](inner T, granted Cap) Wrapped[T] {
	return Wrapped[T]{inner: inner, granted: granted}
}

// Access returns the inner value if required is a subset of the granted set.
func (w Wrapped[T]) Access(required Cap) (T, error) {
	if !w.granted.Contains(required) {
		var zero T
		return zero, &CapabilityError{Required: required, Granted: w.granted}
	}
	return w.inner, nil
}

// AccessUnchecked returns the inner value without a capability check. Only
// teardown paths whose check already happened at open time may use it.
func (w Wrapped[T]) AccessUnchecked() T {
	return w.inner
}

func (w Wrapped[T]) Granted() Cap {
	return w.granted
}
