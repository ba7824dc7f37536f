package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/fault"
)

func hello(version string, active bool) Descriptor {
	return Descriptor{
		ModuleID: "hello_module_v1",
		Version:  version,
		Entry:    EntryReference{ScriptPath: "hello_module_v1", FunctionName: "run"},
		IsActive: active,
	}
}

func TestMemory_FindActive(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(hello("1.0.0", true))

	d, err := reg.FindActive(ctx, "hello_module_v1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", d.Version)
	assert.Equal(t, "hello_module_v1:run", d.Entry.String())

	_, err = reg.FindActive(ctx, "missing_v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrNotFound)

	_, err = reg.FindActive(ctx, "")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestMemory_InactiveIsNotFound(t *testing.T) {
	reg := NewMemory(hello("1.0.0", false))

	_, err := reg.FindActive(context.Background(), "hello_module_v1")
	assert.ErrorIs(t, err, fault.ErrNotFound)

	reg.Add(hello("0.9.0", true))
	d, err := reg.FindActive(context.Background(), "hello_module_v1")
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", d.Version)
}

func TestSelectActive_NeverReturnsInactive(t *testing.T) {
	states := [][]Descriptor{
		{},
		{hello("1.0.0", false)},
		{hello("2.0.0", false), hello("1.0.0", true)},
		{hello("1.0.0", true), hello("9.9.9", false), hello("1.1.0", true)},
		{hello("bogus", false), hello("", true)},
	}

	for _, records := range states {
		d, ok := SelectActive(records, "hello_module_v1")
		if ok {
			assert.True(t, d.IsActive, "selected descriptor must be active: %+v", d)
		}
	}
}

func TestSelectActive_TieBreak(t *testing.T) {
	testCases := []struct {
		name    string
		records []Descriptor
		want    string
	}{
		{
			name:    "highest semantic version wins",
			records: []Descriptor{hello("1.9.0", true), hello("1.10.0", true), hello("1.2.0", true)},
			want:    "1.10.0",
		},
		{
			name:    "v prefix is optional",
			records: []Descriptor{hello("v2.0.0", true), hello("1.5.0", true)},
			want:    "v2.0.0",
		},
		{
			name:    "valid version beats invalid",
			records: []Descriptor{hello("latest", true), hello("0.1.0", true)},
			want:    "0.1.0",
		},
		{
			name:    "equal versions keep first record",
			records: []Descriptor{hello("1.0.0", true), {ModuleID: "hello_module_v1", Version: "1.0.0", IsActive: true, Entry: EntryReference{ScriptPath: "other", FunctionName: "run"}}},
			want:    "1.0.0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok := SelectActive(tc.records, "hello_module_v1")
			require.True(t, ok)
			assert.Equal(t, tc.want, d.Version)
			assert.Equal(t, "hello_module_v1", d.Entry.ScriptPath)
		})
	}
}

func TestSelectActive_ReturnsCopy(t *testing.T) {
	records := []Descriptor{hello("1.0.0", true)}
	d, ok := SelectActive(records, "hello_module_v1")
	require.True(t, ok)

	d.Version = "mutated"
	assert.Equal(t, "1.0.0", records[0].Version)
}
