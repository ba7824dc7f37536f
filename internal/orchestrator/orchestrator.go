// Package orchestrator runs one module end to end: registry lookup,
// invocation, context merge and exactly one terminal event.
//
// A run moves through Init, RegistryLookup, Invocation and ContextMerge to a
// terminal state. Every failure ends the run at the stage that detected it;
// nothing is retried.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/fault"
	"github.com/vk/modgrid/internal/invoker"
	"github.com/vk/modgrid/internal/logsink"
	"github.com/vk/modgrid/internal/metrics"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/registry"
)

const successMessage = "Module executed successfully."

// Request selects the module of one run.
type Request struct {
	// RunID correlates console lines and the terminal event. Generated when empty.
	RunID    string
	ModuleID string
	// Services is handed to the module. It is owned by the caller and never
	// closed here. Nil means module.NopServices.
	Services module.Services
}

// Outcome is the result of one run.
type Outcome struct {
	RunID    string
	ModuleID string
	// Version is empty when the lookup failed.
	Version string
	Stage   logsink.Stage
	// Err is nil on success, otherwise a *fault.Error.
	Err      error
	ExitCode int
	// Context is the context at the end of the run.
	Context  *contextstore.Snapshot
	Warnings []string
	// Event is the terminal event handed to the sink.
	Event       logsink.Event
	RowsWritten int
}

// Succeeded reports whether the run reached Terminal(Success).
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Err == nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator wires a registry, an invoker and a sink together.
type Orchestrator struct {
	registry registry.Registry
	invoker  *invoker.Invoker
	sink     *logsink.BestEffort
	metrics  *metrics.Recorder
	now      func() time.Time
}

// New creates an Orchestrator. Write failures of sink are reported locally
// and never change the outcome of a run.
func New(reg registry.Registry, inv *invoker.Invoker, sink logsink.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		invoker:  inv,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.sink = logsink.NewBestEffort(sink, func(ev logsink.Event, err error) {
		o.metrics.RecordSinkFailure(string(ev.Stream))
	})
	return o
}

// Run executes one module and returns its outcome. It never panics on module
// or sink failures; the outcome carries the classified error and exit code.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Outcome {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	svc := req.Services
	if svc == nil {
		svc = module.NopServices()
	}

	ctx = ctxlog.With(ctx, "run_id", runID, "module_id", req.ModuleID)
	logger := ctxlog.FromContext(ctx)

	store := contextstore.New()
	out := &Outcome{RunID: runID, ModuleID: req.ModuleID}
	logger.Info("Initialized empty context.")

	// RegistryLookup
	logger.Info("Attempting to find module in registry.")
	d, err := o.lookup(ctx, req.ModuleID)
	if err != nil {
		return o.fail(ctx, out, store.Snapshot(), logsink.StageLookup, err, nil)
	}
	out.Version = d.Version
	logger.Info("Loading module.", "version", d.Version, "entry", d.Entry.String())

	// Invocation
	before := store.Snapshot()
	start := time.Now()
	res, err := o.invoker.Invoke(ctx, d, before, svc)
	o.metrics.ObserveInvocation(req.ModuleID, time.Since(start))
	if err != nil {
		err = classifyInvocation(req.ModuleID, d.Version, err)
		stage := logsink.StageExecution
		if errors.Is(err, fault.ErrResolution) {
			stage = logsink.StageImport
		}
		var snapshot *contextstore.Snapshot
		if stage == logsink.StageExecution {
			snapshot = before
		}
		return o.fail(ctx, out, store.Snapshot(), stage, err, snapshot)
	}
	out.Warnings = res.Warnings

	// ContextMerge
	store.Merge(res.Updates)
	logger.Info("Updated context.", "keys", len(res.Updates))

	out.Stage = logsink.StageExecution
	out.Context = store.Snapshot()
	out.ExitCode = fault.ExitOK
	out.Event = logsink.Event{
		RunID:           runID,
		Timestamp:       o.now().UTC(),
		Stream:          logsink.PipelineLog,
		ModuleID:        req.ModuleID,
		ModuleVersion:   logsink.Version(d.Version),
		Message:         successMessage,
		Stage:           logsink.StageExecution,
		Level:           logsink.LevelInfo,
		ContextSnapshot: out.Context,
	}
	out.RowsWritten = o.sink.Emit(ctx, out.Event)
	o.metrics.RecordRun("success", string(out.Stage))

	logger.Info("Module executed successfully.", "rows_written", out.RowsWritten)
	return out
}

// lookup queries the registry and folds every failure into NotFound or
// RegistryUnavailable.
func (o *Orchestrator) lookup(ctx context.Context, moduleID string) (*registry.Descriptor, error) {
	if moduleID == "" {
		return nil, registry.NotFound(moduleID)
	}
	d, err := o.registry.FindActive(ctx, moduleID)
	switch {
	case err == nil && d == nil:
		return nil, registry.NotFound(moduleID)
	case err == nil && !d.IsActive:
		return nil, registry.NotFound(moduleID)
	case err == nil:
		return d, nil
	case errors.Is(err, fault.ErrNotFound), errors.Is(err, fault.ErrRegistryUnavailable):
		return nil, err
	default:
		return nil, registry.Unavailable(moduleID, err)
	}
}

// classifyInvocation makes sure err carries one of the invocation kinds.
func classifyInvocation(moduleID, version string, err error) error {
	if errors.Is(err, fault.ErrResolution) || errors.Is(err, fault.ErrContractViolation) || errors.Is(err, fault.ErrExecution) {
		return err
	}
	fe := fault.Wrap(fault.ErrExecution, moduleID, err, "runtime error")
	fe.Version = version
	return fe
}

func (o *Orchestrator) fail(ctx context.Context, out *Outcome, final *contextstore.Snapshot, stage logsink.Stage, err error, snapshot *contextstore.Snapshot) *Outcome {
	logger := ctxlog.FromContext(ctx)

	out.Stage = stage
	out.Err = err
	out.ExitCode = fault.ExitCode(err)
	out.Context = final
	out.Event = logsink.Event{
		RunID:           out.RunID,
		Timestamp:       o.now().UTC(),
		Stream:          logsink.ErrorLog,
		ModuleID:        out.ModuleID,
		ModuleVersion:   logsink.Version(out.Version),
		Message:         errorMessage(out.ModuleID, stage, err),
		Stage:           stage,
		Level:           logsink.LevelError,
		Traceback:       traceback(err),
		ContextSnapshot: snapshot,
	}

	logger.Error("Run failed.", "stage", string(stage), "kind", fault.KindName(err), "exit_code", out.ExitCode, "error", err)
	out.RowsWritten = o.sink.Emit(ctx, out.Event)
	o.metrics.RecordRun(fault.KindName(err), string(stage))
	return out
}

// errorMessage is the human-readable message of an error event. It always
// names the module and the stage.
func errorMessage(moduleID string, stage logsink.Stage, err error) string {
	detail := err.Error()
	if fe, ok := fault.As(err); ok {
		detail = fe.Detail()
	}
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return fmt.Sprintf("Module '%s' not found or inactive in registry (stage %s).", moduleID, stage)
	case errors.Is(err, fault.ErrRegistryUnavailable):
		return fmt.Sprintf("Registry unavailable while looking up module '%s' (stage %s): %s", moduleID, stage, detail)
	case errors.Is(err, fault.ErrResolution):
		return fmt.Sprintf("ImportError: module '%s' (stage %s): %s", moduleID, stage, detail)
	case errors.Is(err, fault.ErrContractViolation):
		return fmt.Sprintf("ContractViolation: module '%s' (stage %s): %s", moduleID, stage, detail)
	default:
		return fmt.Sprintf("Runtime Error: module '%s' (stage %s): %s", moduleID, stage, detail)
	}
}

// traceback is the free-text diagnostic of an error event. Lookup failures
// carry none.
func traceback(err error) string {
	if errors.Is(err, fault.ErrNotFound) {
		return ""
	}
	fe, ok := fault.As(err)
	if !ok {
		return err.Error()
	}
	if fe.Traceback != "" {
		return fe.Traceback
	}
	if errors.Is(err, fault.ErrRegistryUnavailable) {
		return ""
	}
	return fe.Error()
}
