// Package invoker resolves a module descriptor against the registration table,
// calls the module under the invocation contract and classifies every way the
// call can fail.
//
// Invocation is synchronous and single-attempt. On any failure no updates are
// returned, so the caller's context is left exactly as it was.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/fault"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/registry"
	"github.com/vk/modgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ReturnPolicy decides what happens when a module returns something that is
// not a mapping.
type ReturnPolicy int

const (
	// TolerateNonMapping treats the return as an empty update and records a warning.
	TolerateNonMapping ReturnPolicy = iota
	// RejectNonMapping fails the run with a contract violation.
	RejectNonMapping
)

// Options configures an Invoker.
type Options struct {
	Policy ReturnPolicy
	// Timeout bounds a single call. Zero means no deadline.
	Timeout time.Duration
}

// Result is a successful invocation.
type Result struct {
	Updates  contextstore.Updates
	Warnings []string
}

// Invoker calls modules registered in a table.
type Invoker struct {
	table *module.Table
	opts  Options
}

// New creates an Invoker over table.
func New(table *module.Table, opts Options) *Invoker {
	return &Invoker{table: table, opts: opts}
}

// Invoke resolves d's entry reference and calls it with (in, svc).
//
// Failures are *fault.Error values of kind ErrResolution (unit unknown),
// ErrContractViolation (symbol missing, or a non-mapping return when strict) or
// ErrExecution (the module returned an error, panicked or ran out of time).
func (inv *Invoker) Invoke(ctx context.Context, d *registry.Descriptor, in contextstore.View, svc module.Services) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	unit, ok := inv.table.Resolve(d.Entry.ScriptPath)
	if !ok {
		return nil, inv.classify(fault.New(fault.ErrResolution, d.ModuleID,
			"no unit registered for '%s' (unit key '%s')", d.Entry.ScriptPath, module.UnitKey(d.Entry.ScriptPath)), d)
	}
	logger.Debug("Resolved module unit.", "unit", unit.Name, "symbols", unit.Symbols())

	fn, ok := unit.Symbol(d.Entry.FunctionName)
	if !ok {
		return nil, inv.classify(fault.New(fault.ErrContractViolation, d.ModuleID,
			"unit '%s' does not have function '%s'", unit.Name, d.Entry.FunctionName), d)
	}

	logger.Info("Executing module function.", "function", d.Entry.FunctionName, "unit", unit.Name)
	out, trace, err := inv.call(ctx, fn, in, svc)
	if err != nil {
		fe := fault.Wrap(fault.ErrExecution, d.ModuleID, err, "runtime error")
		fe.Traceback = trace
		return nil, inv.classify(fe, d)
	}

	updates, isMapping := normalize(out)

	res := &Result{Updates: updates}
	if !isMapping {
		if inv.opts.Policy == RejectNonMapping {
			return nil, inv.classify(fault.New(fault.ErrContractViolation, d.ModuleID,
				"function '%s' returned %T, expected a mapping", d.Entry.FunctionName, out), d)
		}
		msg := fmt.Sprintf("module %s did not return a mapping (got %T); context not updated", d.ModuleID, out)
		logger.Warn(msg)
		res.Warnings = append(res.Warnings, msg)
	}
	return res, nil
}

func (inv *Invoker) classify(fe *fault.Error, d *registry.Descriptor) error {
	fe.Version = d.Version
	return fe
}

// call runs fn, converting panics into errors. With a timeout the module runs
// on its own goroutine; a module that ignores ctx keeps running after the
// deadline, since Go offers no way to stop it.
func (inv *Invoker) call(ctx context.Context, fn module.Func, in contextstore.View, svc module.Services) (any, string, error) {
	if inv.opts.Timeout <= 0 {
		return safeCall(ctx, fn, in, svc)
	}

	ctx, cancel := context.WithTimeout(ctx, inv.opts.Timeout)
	defer cancel()

	type outcome struct {
		out   any
		trace string
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		out, trace, err := safeCall(ctx, fn, in, svc)
		done <- outcome{out, trace, err}
	}()

	select {
	case o := <-done:
		return o.out, o.trace, o.err
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("module did not finish within %s: %w", inv.opts.Timeout, err)
		}
		return nil, "", err
	}
}

func safeCall(ctx context.Context, fn module.Func, in contextstore.View, svc module.Services) (out any, trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			trace = string(debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = fn(ctx, in, svc)
	if err != nil {
		trace = fmt.Sprintf("%+v", err)
	}
	return out, trace, err
}

// normalize turns a module's return value into updates. isMapping is false
// when the value has no mapping form at all. Entries with no native cty form
// are kept as strings.
func normalize(out any) (updates contextstore.Updates, isMapping bool) {
	if u, ok := out.(contextstore.Updates); ok {
		return copyUpdates(u), true
	}
	attrs, ok := value.Attributes(value.FromGo(out))
	if !ok {
		return contextstore.Updates{}, false
	}
	return copyUpdates(attrs), true
}

func copyUpdates(in map[string]cty.Value) contextstore.Updates {
	u := make(contextstore.Updates, len(in))
	for k, v := range in {
		u[k] = v
	}
	return u
}
