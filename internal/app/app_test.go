package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/fault"
	"github.com/vk/modgrid/internal/logsink"
	"github.com/vk/modgrid/internal/registry"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(Config{
		ModuleID:           "hello_module_v1",
		SupabaseURL:        "https://project.supabase.co",
		SupabaseServiceKey: "key",
	})
	require.NoError(t, err)

	assert.Equal(t, RegistryPostgREST, cfg.Registry)
	assert.Equal(t, []string{SinkPostgREST}, cfg.Sinks)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.EventsFile)

	cfg, err = NewConfig(Config{ModuleID: "m", Registry: "FILE", RegistryPaths: []string{"registry.hcl"}})
	require.NoError(t, err)
	assert.Equal(t, []string{SinkFile}, cfg.Sinks)
	assert.Equal(t, DefaultEventsFile, cfg.EventsFile)
}

func TestNewConfig_ReportsEveryProblem(t *testing.T) {
	_, err := NewConfig(Config{
		Registry:        "file",
		Sinks:           []string{"socketio", "kafka", "socketio"},
		LogFormat:       "xml",
		LogLevel:        "verbose",
		HealthcheckPort: 70000,
		InvokeTimeout:   -1,
	})
	require.Error(t, err)

	for _, want := range []string{
		"a target module id is required",
		"the file registry needs at least one registry path",
		"the socketio sink needs a socket.io URL",
		`unknown sink "kafka"`,
		`sink "socketio" given more than once`,
		`invalid log format "xml"`,
		`invalid log level "verbose"`,
		"invalid healthcheck port 70000",
		"invoke timeout must not be negative",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNewConfig_PostgRESTNeedsCredentials(t *testing.T) {
	_, err := NewConfig(Config{ModuleID: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL is not set")

	_, err = NewConfig(Config{ModuleID: "m", Registry: "file", RegistryPaths: []string{"r"}, Sinks: []string{"file", "postgrest"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_SERVICE_KEY is not set")
}

func TestApp_FileRegistryAndFileSink(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.hcl")
	require.NoError(t, os.WriteFile(regPath, []byte(`
module "hello_module_v1" {
  version       = "1.0.0"
  script_path   = "src/modules/context/hello_module_v1.py"
  function_name = "run"
}
`), 0o644))
	eventsPath := filepath.Join(dir, "events", "run.jsonl")

	cfg, err := NewConfig(Config{
		ModuleID:      "hello_module_v1",
		Registry:      RegistryFile,
		RegistryPaths: []string{regPath},
		EventsFile:    eventsPath,
		LogFormat:     "text",
	})
	require.NoError(t, err)

	var logs bytes.Buffer
	a, err := NewApp(context.Background(), &logs, cfg)
	require.NoError(t, err)

	// --- Act ---
	out := a.Run(context.Background())
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "closing twice is harmless")

	// --- Assert ---
	require.True(t, out.Succeeded(), "run failed: %v", out.Err)
	assert.Equal(t, 1, out.RowsWritten)
	assert.Contains(t, logs.String(), "Pipeline orchestrator finished successfully.")

	f, err := os.Open(eventsPath)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "pipeline_log", lines[0]["stream"])
	assert.Equal(t, out.RunID, lines[0]["run_id"])
	assert.Equal(t, map[string]any{
		"hello_message":   "Hello from the first registered module!",
		"module_executed": "hello_module_v1",
	}, lines[0]["context_snapshot"])
}

func TestApp_BrokenRegistryFileIsUnavailable(t *testing.T) {
	cfg := &Config{ModuleID: "hello_module_v1", Registry: RegistryFile, RegistryPaths: []string{filepath.Join(t.TempDir(), "missing.hcl")}}
	sink := logsink.NewMemory()

	a, err := NewApp(context.Background(), io.Discard, cfg, WithSink(sink))
	require.NoError(t, err)
	defer a.Close()

	out := a.Run(context.Background())

	assert.ErrorIs(t, out.Err, fault.ErrRegistryUnavailable)
	assert.Equal(t, fault.ExitRegistryUnavailable, out.ExitCode)
	require.Len(t, sink.Events(), 1)
	assert.Equal(t, logsink.ErrorLog, sink.Events()[0].Stream)
}

func TestApp_SettingsReachModules(t *testing.T) {
	cfg := &Config{
		ModuleID: "example_module",
		Settings: map[string]string{"example_module.symbol": "ETH/USDT"},
	}
	reg := registry.NewMemory(registry.Descriptor{
		ModuleID: "example_module",
		Version:  "0.1.0",
		Entry:    registry.EntryReference{ScriptPath: "src/example_module.py", FunctionName: "sample_processor"},
		IsActive: true,
	})
	sink := logsink.NewMemory()

	a, err := NewApp(context.Background(), io.Discard, cfg, WithRegistry(reg), WithSink(sink))
	require.NoError(t, err)
	defer a.Close()

	out := a.Run(context.Background())

	require.True(t, out.Succeeded(), "run failed: %v", out.Err)
	assert.Equal(t, map[string]any{
		"status":       "ETH/USDT_processed_ok",
		"input_symbol": "ETH/USDT",
	}, out.Context.ToMap())
}

func TestApp_SocketIOFailureIsFatalWhenAlone(t *testing.T) {
	cfg := &Config{
		ModuleID:    "hello_module_v1",
		Sinks:       []string{SinkSocketIO},
		SocketIOURL: "relative/path",
	}

	_, err := NewApp(context.Background(), io.Discard, cfg, WithRegistry(registry.NewMemory()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set up log sinks")
}

func TestApp_SocketIOFailureDegradesWithOtherSinks(t *testing.T) {
	cfg := &Config{
		ModuleID:    "hello_module_v1",
		Sinks:       []string{SinkFile, SinkSocketIO},
		EventsFile:  filepath.Join(t.TempDir(), "events.jsonl"),
		SocketIOURL: "relative/path",
	}
	var logs bytes.Buffer

	a, err := NewApp(context.Background(), &logs, cfg, WithRegistry(registry.NewMemory()))
	require.NoError(t, err)
	defer a.Close()

	assert.Contains(t, logs.String(), "Event stream unavailable, continuing without it.")
}

func TestApp_Routes(t *testing.T) {
	cfg := &Config{ModuleID: "missing_v1"}
	a, err := NewApp(context.Background(), io.Discard, cfg, WithRegistry(registry.NewMemory()), WithSink(logsink.NewMemory()))
	require.NoError(t, err)
	defer a.Close()
	a.Run(context.Background())

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `modgrid_runs_total{outcome="NotFound",stage="module_lookup"} 1`)
}

func TestNewLogger_RendersCritical(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("info", "text", &buf)

	logger.Log(context.Background(), ctxlog.LevelCritical, "lost event")
	logger.Debug("hidden")

	assert.Contains(t, buf.String(), "level=CRITICAL")
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	newLogger("debug", "json", &buf).Log(context.Background(), slog.LevelDebug, "shown")
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}
