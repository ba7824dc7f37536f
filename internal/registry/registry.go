package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/fault"
)

// EntryReference locates a callable: the unit that holds it and its name.
type EntryReference struct {
	ScriptPath   string
	FunctionName string
}

func (e EntryReference) String() string {
	return fmt.Sprintf("%s:%s", e.ScriptPath, e.FunctionName)
}

// Descriptor describes how to locate and invoke one module.
type Descriptor struct {
	ModuleID string
	Version  string
	Entry    EntryReference
	IsActive bool
}

// Registry finds the active descriptor for a module id.
type Registry interface {
	FindActive(ctx context.Context, moduleID string) (*Descriptor, error)
}

// Memory is a Registry over an in-memory list of records, kept in insertion
// order. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records []Descriptor
}

// NewMemory creates a registry holding the given records.
func NewMemory(records ...Descriptor) *Memory {
	return &Memory{records: append([]Descriptor(nil), records...)}
}

// Add appends a record.
func (m *Memory) Add(d Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, d)
}

// FindActive implements Registry.
func (m *Memory) FindActive(ctx context.Context, moduleID string) (*Descriptor, error) {
	logger := ctxlog.FromContext(ctx)

	m.mu.RLock()
	d, ok := SelectActive(m.records, moduleID)
	m.mu.RUnlock()

	if !ok {
		logger.Warn("Module not found or inactive in memory registry.", "module_id", moduleID)
		return nil, NotFound(moduleID)
	}
	logger.Debug("Found active module in memory registry.", "module_id", moduleID, "version", d.Version)
	return d, nil
}

// NotFound returns the classified error for a missing or inactive module.
func NotFound(moduleID string) error {
	if moduleID == "" {
		return fault.New(fault.ErrNotFound, moduleID, "module id is empty")
	}
	return fault.New(fault.ErrNotFound, moduleID, "no active record for '%s'", moduleID)
}

// Unavailable returns the classified error for a registry that could not be queried.
func Unavailable(moduleID string, err error) error {
	return fault.Wrap(fault.ErrRegistryUnavailable, moduleID, err, "registry query failed")
}
