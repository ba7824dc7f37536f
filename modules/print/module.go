package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/value"
)

const unitName = "print"

// Module implements the module.Module interface for this package.
type Module struct{}

// Run writes every context entry to the services output, sorted by key, and
// records the printed keys in "printed_keys".
func Run(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
	svc.Logger().WithName(unitName).Info("Printing context", "keys", in.Len())
	w := svc.Output()

	keys := in.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(w, "      (empty)")
		return map[string]any{"printed_keys": []string{}}, nil
	}

	// Sort keys for consistent output
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	for _, k := range sorted {
		v, _ := in.Get(k)
		b, err := value.MarshalJSON(v)
		if err != nil {
			return nil, fmt.Errorf("rendering context key '%s': %w", k, err)
		}
		fmt.Fprintf(w, "      %s = %s\n", k, b)
	}

	return map[string]any{"printed_keys": sorted}, nil
}

// Register registers the unit with the engine.
func (m *Module) Register(t *module.Table) {
	t.Register(unitName, "run", Run)
}
