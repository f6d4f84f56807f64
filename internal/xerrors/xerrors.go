// Package xerrors attaches call-site information to errors so the logger can
// report where a failure was created or wrapped without a panic-style trace.
//
// New/Newf capture a full stack, Wrap/Wrapf record a single caller frame.
// Both keep the standard errors.Is / errors.As chain intact.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) PC() uintptr   { return w.pc }

// stackTracer is satisfied by any error in a chain that carries a stack.
type stackTracer interface{ StackPCs() []uintptr }

// skip counts frames above the caller of the exported function
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// +2: runtime.Callers and captureStack itself
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func stackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: captureStack(skip + 1)}
}

// New returns an error with msg and the caller's stack.
func New(msg string) error { return stackSkip(errors.New(msg), 1) }

// Newf is New with fmt formatting. %w is honoured.
func Newf(format string, args ...any) error {
	return stackSkip(fmt.Errorf(format, args...), 1)
}

// WithStack attaches the caller's stack to err unconditionally.
func WithStack(err error) error { return stackSkip(err, 1) }

// EnsureTrace attaches a stack only when nothing in the chain has one yet.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if errors.As(err, &st) && len(st.StackPCs()) > 0 {
		return err
	}
	return stackSkip(err, 1)
}

// Wrap prefixes err with msg and records the calling frame. Nil in, nil out.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: callerPC(1)}
}

// Wrapf is Wrap with fmt formatting for the prefix.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// IsWrapper reports whether err is one of this package's wrapper types.
// The logger uses it to find the first meaningful type in a chain.
func IsWrapper(err error) bool {
	switch err.(type) {
	case *stacked, *wrapped:
		return true
	}
	return false
}
