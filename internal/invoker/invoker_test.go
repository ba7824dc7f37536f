package invoker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/fault"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/module/moduletest"
	"github.com/vk/modgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// funcModule registers a single function under unit "unit".
type funcModule struct {
	symbol string
	fn     module.Func
}

func (m funcModule) Register(t *module.Table) {
	t.Register("unit", m.symbol, m.fn)
}

func descriptor(scriptPath, function string) *registry.Descriptor {
	return &registry.Descriptor{
		ModuleID: "test_module",
		Version:  "1.2.3",
		Entry:    registry.EntryReference{ScriptPath: scriptPath, FunctionName: function},
		IsActive: true,
	}
}

func invoke(t *testing.T, opts Options, fn module.Func, d *registry.Descriptor) (*Result, error) {
	t.Helper()
	inv := New(module.NewTable(funcModule{symbol: "run", fn: fn}), opts)
	return inv.Invoke(context.Background(), d, contextstore.New().Snapshot(), &moduletest.Services{})
}

func returning(out any, err error) module.Func {
	return func(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
		return out, err
	}
}

func TestInvoke_MappingReturns(t *testing.T) {
	testCases := []struct {
		name string
		out  any
	}{
		{name: "native map", out: map[string]any{"greeting": "hi"}},
		{name: "typed map", out: map[string]string{"greeting": "hi"}},
		{name: "updates", out: contextstore.Updates{"greeting": cty.StringVal("hi")}},
		{name: "cty object", out: cty.ObjectVal(map[string]cty.Value{"greeting": cty.StringVal("hi")})},
		{name: "tagged struct", out: struct {
			Greeting string `cty:"greeting"`
		}{Greeting: "hi"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := invoke(t, Options{}, returning(tc.out, nil), descriptor("unit", "run"))
			require.NoError(t, err)
			require.Empty(t, res.Warnings)
			require.Contains(t, res.Updates, "greeting")
			assert.Equal(t, "hi", res.Updates["greeting"].AsString())
		})
	}
}

func TestInvoke_NonMappingTolerated(t *testing.T) {
	for _, out := range []any{"a plain string", 42, nil, []string{"x"}} {
		res, err := invoke(t, Options{Policy: TolerateNonMapping}, returning(out, nil), descriptor("unit", "run"))
		require.NoError(t, err)
		assert.Empty(t, res.Updates)
		assert.Len(t, res.Warnings, 1)
	}
}

func TestInvoke_NonMappingRejected(t *testing.T) {
	_, err := invoke(t, Options{Policy: RejectNonMapping}, returning("a plain string", nil), descriptor("unit", "run"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrContractViolation)
}

type quote struct {
	Price  int
	Symbol string
}

func TestInvoke_EntriesWithoutCtyFormAreStringified(t *testing.T) {
	// --- Arrange ---
	out := map[string]any{
		"ok":         "value",
		"quote":      quote{Price: 42, Symbol: "BTC"},
		"last_error": errors.New("rate limited"),
		"cb":         func() {},
	}

	// --- Act ---
	res, err := invoke(t, Options{Policy: RejectNonMapping}, returning(out, nil), descriptor("unit", "run"))

	// --- Assert ---
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Len(t, res.Updates, 4)
	assert.Equal(t, "value", res.Updates["ok"].AsString())
	assert.Equal(t, "{42 BTC}", res.Updates["quote"].AsString())
	assert.Equal(t, "rate limited", res.Updates["last_error"].AsString())
	assert.Equal(t, cty.String, res.Updates["cb"].Type())
}

func TestInvoke_ResolutionFailures(t *testing.T) {
	fn := returning(map[string]any{}, nil)

	_, err := invoke(t, Options{}, fn, descriptor("src/modules/missing.py", "run"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrResolution)

	_, err = invoke(t, Options{}, fn, descriptor("src/modules/unit.py", "not_there"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrContractViolation)

	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, "test_module", fe.ModuleID)
	assert.Equal(t, "1.2.3", fe.Version)
}

func TestInvoke_ExecutionErrors(t *testing.T) {
	t.Run("returned error", func(t *testing.T) {
		_, err := invoke(t, Options{}, returning(nil, errors.New("division by zero")), descriptor("unit", "run"))
		require.Error(t, err)
		assert.ErrorIs(t, err, fault.ErrExecution)

		fe, ok := fault.As(err)
		require.True(t, ok)
		assert.Contains(t, fe.Traceback, "division by zero")
	})

	t.Run("panic", func(t *testing.T) {
		boom := func(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
			var m map[string]int
			m["x"] = 1
			return nil, nil
		}
		_, err := invoke(t, Options{}, boom, descriptor("unit", "run"))
		require.Error(t, err)
		assert.ErrorIs(t, err, fault.ErrExecution)

		fe, ok := fault.As(err)
		require.True(t, ok)
		assert.Contains(t, fe.Traceback, "goroutine")
		assert.Contains(t, fe.Error(), "assignment to entry in nil map")
	})

	t.Run("deadline", func(t *testing.T) {
		slow := func(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return map[string]any{"late": true}, nil
		}
		_, err := invoke(t, Options{Timeout: 20 * time.Millisecond}, slow, descriptor("unit", "run"))
		require.Error(t, err)
		assert.ErrorIs(t, err, fault.ErrExecution)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestInvoke_ModuleSeesContextButCannotMutateIt(t *testing.T) {
	store := contextstore.New()
	store.Merge(contextstore.Updates{"seed": cty.StringVal("value")})

	var seen string
	fn := func(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
		v, _ := in.Get("seed")
		seen = v.AsString()
		return map[string]any{"seed": "overwritten"}, nil
	}

	inv := New(module.NewTable(funcModule{symbol: "run", fn: fn}), Options{})
	res, err := inv.Invoke(context.Background(), descriptor("unit", "run"), store.Snapshot(), &moduletest.Services{})
	require.NoError(t, err)

	assert.Equal(t, "value", seen)
	assert.Equal(t, "overwritten", res.Updates["seed"].AsString())
	v, _ := store.Get("seed")
	assert.Equal(t, "value", v.AsString(), "invoke must not touch the caller's store")
}
