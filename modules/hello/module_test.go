package hello

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/module/moduletest"
)

func TestRun(t *testing.T) {
	out, err := moduletest.Call(Run, nil, &moduletest.Services{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"hello_message":   "Hello from the first registered module!",
		"module_executed": "hello_module_v1",
	}, out)
}

func TestRegister(t *testing.T) {
	table := module.NewTable(&Module{})

	unit, ok := table.Resolve("src/modules/context/hello_module_v1.py")
	require.True(t, ok)
	_, ok = unit.Symbol("run")
	assert.True(t, ok)
}
