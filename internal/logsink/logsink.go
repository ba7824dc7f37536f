// Package logsink defines the terminal event written once per run and the
// append-only sinks that persist it.
//
// A Sink reports how many rows it wrote. Callers that must never fail on a
// logging problem wrap their sink in a BestEffort.
package logsink

import (
	"context"
	"time"

	"github.com/vk/modgrid/internal/contextstore"
)

// Stream names the log an event belongs to.
type Stream string

const (
	PipelineLog Stream = "pipeline_log"
	ErrorLog    Stream = "error_log"
)

// Table returns the name of the table the stream is stored in.
func (s Stream) Table() string {
	switch s {
	case PipelineLog:
		return "Pipeline_Log"
	case ErrorLog:
		return "Error_Log"
	}
	return string(s)
}

// Level is the severity recorded on an event.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Stage is the pipeline phase at which a run's outcome was decided.
type Stage string

const (
	StageLookup    Stage = "module_lookup"
	StageImport    Stage = "module_import"
	StageExecution Stage = "module_execution"
)

// Event is the single terminal record of a run.
type Event struct {
	RunID           string                 `json:"run_id,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Stream          Stream                 `json:"stream"`
	ModuleID        string                 `json:"module_id"`
	ModuleVersion   *string                `json:"module_version"`
	Message         string                 `json:"message"`
	Stage           Stage                  `json:"stage"`
	Level           Level                  `json:"log_level"`
	Traceback       string                 `json:"traceback,omitempty"`
	ContextSnapshot *contextstore.Snapshot `json:"context_snapshot,omitempty"`
}

// Version returns a module version suitable for Event.ModuleVersion; the
// empty string means unknown.
func Version(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Sink appends events to durable storage.
type Sink interface {
	// Append writes ev and returns the number of rows written.
	Append(ctx context.Context, ev Event) (int, error)
}
