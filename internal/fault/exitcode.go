package fault

import "errors"

// Process exit codes. They are part of the external contract: schedulers
// distinguish failure classes from the exit status alone, so existing values
// must never be renumbered.
const (
	ExitOK                  = 0
	ExitStartup             = 1
	ExitUsage               = 2
	ExitNotFound            = 10
	ExitRegistryUnavailable = 11
	ExitResolution          = 12
	ExitContractViolation   = 13
	ExitExecution           = 14
)

var classes = []struct {
	kind error
	code int
	name string
}{
	{ErrNotFound, ExitNotFound, "NotFound"},
	{ErrRegistryUnavailable, ExitRegistryUnavailable, "RegistryUnavailable"},
	{ErrResolution, ExitResolution, "ResolutionError"},
	{ErrContractViolation, ExitContractViolation, "ContractViolation"},
	{ErrExecution, ExitExecution, "ExecutionError"},
	{ErrLogSink, ExitOK, "LogSinkFailure"},
}

// ExitCode maps an error to its exit code. A nil error maps to ExitOK and an
// unclassified error to ExitStartup.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, c := range classes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return ExitStartup
}

// KindName returns the stable class name of err ("NotFound", "ExecutionError", ...).
func KindName(err error) string {
	if err == nil {
		return "Success"
	}
	for _, c := range classes {
		if errors.Is(err, c.kind) {
			return c.name
		}
	}
	return "Unclassified"
}
