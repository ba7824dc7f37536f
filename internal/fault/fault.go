// Package fault defines the failure taxonomy of a run and the process exit
// code assigned to each failure class.
//
// Every classified failure is an *Error whose Kind is one of the sentinel
// errors below, so callers can branch with errors.Is without caring which
// component produced the failure.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the registry holds no active descriptor for the id.
	ErrNotFound = errors.New("module not found or inactive in registry")
	// ErrRegistryUnavailable means the registry could not be queried at all.
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrResolution means the descriptor's entry reference names no known unit.
	ErrResolution = errors.New("module resolution failed")
	// ErrContractViolation means the unit exists but does not honour the invocation contract.
	ErrContractViolation = errors.New("module contract violation")
	// ErrExecution means the module failed while running.
	ErrExecution = errors.New("module execution failed")
	// ErrLogSink means a terminal event could not be written. It never fails a run.
	ErrLogSink = errors.New("log sink write failed")
)

// Error is a classified run failure.
type Error struct {
	Kind      error
	ModuleID  string
	Version   string
	Msg       string
	Traceback string
	Err       error
}

// New creates a classified error for a module.
func New(kind error, moduleID string, format string, args ...any) *Error {
	return &Error{Kind: kind, ModuleID: moduleID, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error that keeps err as its cause.
func Wrap(kind error, moduleID string, err error, format string, args ...any) *Error {
	e := New(kind, moduleID, format, args...)
	e.Err = err
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "module '%s'", e.ModuleID)
	if e.Version != "" {
		fmt.Fprintf(&b, " v%s", e.Version)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, ": %s", e.Kind)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Detail is the message without the module prefix, used for log records.
func (e *Error) Detail() string {
	parts := make([]string, 0, 2)
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 && e.Kind != nil {
		return e.Kind.Error()
	}
	return strings.Join(parts, ": ")
}

// As returns err as an *Error when it is one.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
