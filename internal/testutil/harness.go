package testutil

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/app"
	"github.com/vk/modgrid/internal/logsink"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/orchestrator"
	"github.com/vk/modgrid/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Scenario describes one run through a fully wired App.
type Scenario struct {
	ModuleID string
	// Registry defaults to an in-memory registry holding Descriptors.
	Registry    registry.Registry
	Descriptors []registry.Descriptor
	// Modules defaults to the compiled-in module list.
	Modules []module.Module
	// Sink defaults to a fresh in-memory sink.
	Sink          logsink.Sink
	StrictReturns bool
	Settings      map[string]string
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Outcome   *orchestrator.Outcome
	Events    *logsink.Memory
	App       *app.App
}

// RunScenario provides a standardized harness for running integration tests
// using a default background context.
func RunScenario(t *testing.T, sc Scenario) *HarnessResult {
	t.Helper()
	return RunScenarioWithContext(context.Background(), t, sc)
}

// RunScenarioWithContext builds an App for sc, runs it once and closes it.
// Set MODGRID_TEST_LOGS=true to dump the captured console logs.
func RunScenarioWithContext(ctx context.Context, t *testing.T, sc Scenario) *HarnessResult {
	t.Helper()

	reg := sc.Registry
	if reg == nil {
		reg = registry.NewMemory(sc.Descriptors...)
	}
	events := logsink.NewMemory()
	var sink logsink.Sink = events
	if sc.Sink != nil {
		sink = logsink.Multi{events, sc.Sink}
	}

	opts := []app.Option{app.WithRegistry(reg), app.WithSink(sink)}
	if sc.Modules != nil {
		opts = append(opts, app.WithModules(sc.Modules...))
	}

	appConfig := &app.Config{
		ModuleID:      sc.ModuleID,
		LogLevel:      "debug",
		LogFormat:     "text",
		StrictReturns: sc.StrictReturns,
		Settings:      sc.Settings,
	}

	logBuffer := &SafeBuffer{}
	testApp, err := app.NewApp(ctx, logBuffer, appConfig, opts...)
	require.NoError(t, err, "app startup failed:\n%s", logBuffer.String())

	outcome := testApp.Run(ctx)
	require.NoError(t, testApp.Close())

	if os.Getenv("MODGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Outcome:   outcome,
		Events:    events,
		App:       testApp,
	}
}
