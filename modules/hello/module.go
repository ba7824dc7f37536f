// Package hello is the smallest possible module: it ignores its input and
// adds a greeting to the context.
package hello

import (
	"context"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
)

const unitName = "hello_module_v1"

// Message is the greeting the module adds.
const Message = "Hello from the first registered module!"

// Module implements the module.Module interface for this package.
type Module struct{}

// Run is the unit's entry point.
func Run(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
	logger := svc.Logger().WithName(unitName)
	logger.Info("Executing module", "context_keys", in.Len())

	updates := map[string]any{
		"hello_message":   Message,
		"module_executed": unitName,
	}

	logger.Info("Finished execution", "message", Message)
	return updates, nil
}

// Register registers the unit with the engine.
func (m *Module) Register(t *module.Table) {
	t.Register(unitName, "run", Run)
}
