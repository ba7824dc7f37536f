// Package example is a template for new processing modules. It marks a
// trading symbol as processed.
package example

import (
	"context"
	"fmt"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
	"github.com/zclconf/go-cty/cty"
)

const (
	unitName      = "example_module"
	defaultSymbol = "BTC/USDT"
)

// Module implements the module.Module interface for this package.
type Module struct{}

// Output is the update the processor returns.
type Output struct {
	Status      string `cty:"status"`
	InputSymbol string `cty:"input_symbol"`
}

// SampleProcessor reads the symbol from the context key "symbol", falling
// back to the setting "example_module.symbol" and then to BTC/USDT.
func SampleProcessor(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
	logger := svc.Logger().WithName(unitName)

	symbol, err := resolveSymbol(in, svc)
	if err != nil {
		return nil, err
	}
	logger.Info("Processing symbol", "symbol", symbol, "context_keys", in.Keys())

	out := Output{
		Status:      symbol + "_processed_ok",
		InputSymbol: symbol,
	}
	logger.Info("Finished processing", "symbol", symbol, "status", out.Status)
	return out, nil
}

func resolveSymbol(in contextstore.View, svc module.Services) (string, error) {
	if v, ok := in.Get("symbol"); ok && v.IsKnown() && !v.IsNull() {
		if v.Type() != cty.String {
			return "", fmt.Errorf("context key 'symbol' must be a string, got %s", v.Type().FriendlyName())
		}
		if s := v.AsString(); s != "" {
			return s, nil
		}
	}
	if s, ok := svc.Setting(unitName + ".symbol"); ok && s != "" {
		return s, nil
	}
	return defaultSymbol, nil
}

// Register registers the unit with the engine.
func (m *Module) Register(t *module.Table) {
	t.Register(unitName, "sample_processor", SampleProcessor)
}
