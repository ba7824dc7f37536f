package testutil

import "github.com/vk/modgrid/internal/module"

// SimpleModule is a test helper for easily creating a mock module that
// registers a single callable under one unit.
type SimpleModule struct {
	Unit   string
	Symbol string
	Fn     module.Func
}

// Register implements the module.Module interface.
func (m *SimpleModule) Register(t *module.Table) {
	if m.Unit != "" && m.Symbol != "" && m.Fn != nil {
		t.Register(m.Unit, m.Symbol, m.Fn)
	}
}
