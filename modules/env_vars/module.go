package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
)

const (
	unitName      = "env_vars"
	defaultPrefix = "MODGRID_"
)

// Module implements the module.Module interface for this package.
type Module struct{}

// Output defines the update returned by the unit.
type Output struct {
	Env map[string]string `cty:"env"`
}

// Run copies the environment variables whose names start with the prefix
// from setting "env_vars.prefix" (default MODGRID_) into the context key
// "env". An explicitly empty prefix copies everything.
func Run(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
	prefix, ok := svc.Setting(unitName + ".prefix")
	if !ok {
		prefix = defaultPrefix
	}

	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], prefix) {
			envMap[pair[0]] = pair[1]
		}
	}

	svc.Logger().WithName(unitName).Info("Collected environment", "prefix", prefix, "count", len(envMap))
	return &Output{Env: envMap}, nil
}

// Register registers the unit with the engine.
func (m *Module) Register(t *module.Table) {
	t.Register(unitName, "run", Run)
}
