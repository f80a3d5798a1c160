package hal

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidState       = errors.New("invalid state")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrNotSupported       = errors.New("not supported")
	ErrNotFound           = errors.New("not found")
	ErrIncompatibleFormat = errors.New("incompatible format")
	ErrIOFailure          = errors.New("io failure")
	ErrTimeout            = errors.New("timeout")
	ErrPartialFailure     = errors.New("partial failure")
)

// Error is the concrete error type returned by the HAL.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error, format string, args ...any) *Error {
	var cause error
	if format != "" {
		cause = fmt.Errorf(format, args...)
	}
	return &Error{Op: op, Kind: kind, Err: cause}
}

func wrapError(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// SlotFault describes one team slot that terminated in StatusError.
type SlotFault struct {
	Slot int
	Code int32
}

func (f *SlotFault) Error() string {
	return fmt.Sprintf("slot %d faulted (%s)", f.Slot, FaultString(f.Code))
}

// Faults returns the per-slot faults carried by a PartialFailure error, or nil
// for any other error.
func Faults(err error) []SlotFault {
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrPartialFailure {
		return nil
	}
	var out []SlotFault
	for _, fe := range multierr.Errors(e.Err) {
		var sf *SlotFault
		if errors.As(fe, &sf) {
			out = append(out, *sf)
		}
	}
	return out
}
