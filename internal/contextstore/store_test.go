package contextstore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestMerge_OverwritesOnlyGivenKeys(t *testing.T) {
	s := New()
	s.Merge(Updates{
		"a": cty.StringVal("one"),
		"b": cty.NumberIntVal(2),
	})
	s.Merge(Updates{
		"b": cty.StringVal("two"),
		"c": cty.True,
	})

	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	want := map[string]any{"a": "one", "b": "two", "c": true}
	if diff := cmp.Diff(want, s.Snapshot().ToMap()); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_EmptyIsNoOp(t *testing.T) {
	s := New()
	s.Merge(Updates{"a": cty.StringVal("one")})
	before := s.Snapshot()

	s.Merge(Updates{})
	s.Merge(nil)

	assert.Equal(t, before.Keys(), s.Keys())
	assert.Equal(t, before.ToMap(), s.Snapshot().ToMap())
}

func TestMerge_IsShallow(t *testing.T) {
	s := New()
	s.Merge(Updates{"cfg": cty.ObjectVal(map[string]cty.Value{
		"x": cty.NumberIntVal(1),
		"y": cty.NumberIntVal(2),
	})})
	s.Merge(Updates{"cfg": cty.ObjectVal(map[string]cty.Value{
		"x": cty.NumberIntVal(10),
	})})

	got, ok := s.Get("cfg")
	require.True(t, ok)
	assert.True(t, got.RawEquals(cty.ObjectVal(map[string]cty.Value{"x": cty.NumberIntVal(10)})),
		"nested objects must be replaced, not merged")
}

func TestMerge_NewKeysAppendedInLexicalOrder(t *testing.T) {
	s := New()
	s.Merge(Updates{"zeta": cty.True})
	s.Merge(Updates{"beta": cty.True, "alpha": cty.True, "zeta": cty.False})

	assert.Equal(t, []string{"zeta", "alpha", "beta"}, s.Keys())
}

func TestSnapshot_IsIsolatedFromLaterMerges(t *testing.T) {
	s := New()
	s.Merge(Updates{"a": cty.StringVal("one")})
	snap := s.Snapshot()

	s.Merge(Updates{"a": cty.StringVal("changed"), "b": cty.True})

	assert.Equal(t, 1, snap.Len())
	v, ok := snap.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", v.AsString())
}

func TestSnapshot_MarshalJSONKeepsOrder(t *testing.T) {
	s := New()
	s.Merge(Updates{"z": cty.StringVal("last-name")})
	s.Merge(Updates{"a": cty.NumberFloatVal(1.5), "m": cty.ListVal([]cty.Value{cty.True})})

	out, err := s.Snapshot().MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":"last-name","a":1.5,"m":[true]}`, string(out))

	var nilSnap *Snapshot
	out, err = nilSnap.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestSnapshot_Value(t *testing.T) {
	s := New()
	assert.True(t, s.Snapshot().Value().RawEquals(cty.EmptyObjectVal))

	s.Merge(Updates{"k": cty.StringVal("v")})
	assert.True(t, s.Snapshot().Value().RawEquals(cty.ObjectVal(map[string]cty.Value{"k": cty.StringVal("v")})))
}
