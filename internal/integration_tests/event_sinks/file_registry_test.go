package integration_tests

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/app"
	"github.com/vk/modgrid/internal/testutil"
)

const registryHCL = `
module "example_module" {
  version       = "0.2.0"
  script_path   = "src/modules/example_module.py"
  function_name = "sample_processor"
}

module "example_module" {
  version       = "0.1.0"
  script_path   = "src/modules/example_module.py"
  function_name = "sample_processor"
}

module "hello_module_v1" {
  version       = 1
  script_path   = "src/modules/context/hello_module_v1.py"
  function_name = "run"
  is_active     = false
}
`

// readEvents decodes a JSON lines file, dropping the fields that change per run.
func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		delete(ev, "timestamp")
		delete(ev, "run_id")
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func runWithFiles(t *testing.T, dir, moduleID string) {
	t.Helper()
	regPath := filepath.Join(dir, "registry", "modules.hcl")
	require.NoError(t, os.MkdirAll(filepath.Dir(regPath), 0o755))
	require.NoError(t, os.WriteFile(regPath, []byte(registryHCL), 0o644))

	cfg, err := app.NewConfig(app.Config{
		ModuleID:      moduleID,
		Registry:      app.RegistryFile,
		RegistryPaths: []string{filepath.Dir(regPath)},
		EventsFile:    filepath.Join(dir, "events.jsonl"),
		LogFormat:     "text",
		LogLevel:      "debug",
		Settings:      map[string]string{"example_module.symbol": "BTC/USDT"},
	})
	require.NoError(t, err)

	logs := &testutil.SafeBuffer{}
	a, err := app.NewApp(context.Background(), logs, cfg)
	require.NoError(t, err)
	a.Run(context.Background())
	require.NoError(t, a.Close())
}

// Test for: runs against an HCL registry append one JSON line each to the events file
func TestEventSinks_FileRegistryAndFileSink(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()

	// --- Act ---
	runWithFiles(t, dir, "example_module")
	runWithFiles(t, dir, "hello_module_v1")

	// --- Assert ---
	want := []map[string]any{
		{
			"stream":         "pipeline_log",
			"module_id":      "example_module",
			"module_version": "0.2.0",
			"message":        "Module executed successfully.",
			"stage":          "module_execution",
			"log_level":      "INFO",
			"context_snapshot": map[string]any{
				"status":       "BTC/USDT_processed_ok",
				"input_symbol": "BTC/USDT",
			},
		},
		{
			"stream":         "error_log",
			"module_id":      "hello_module_v1",
			"module_version": nil,
			"message":        "Module 'hello_module_v1' not found or inactive in registry (stage module_lookup).",
			"stage":          "module_lookup",
			"log_level":      "ERROR",
		},
	}
	if diff := cmp.Diff(want, readEvents(t, filepath.Join(dir, "events.jsonl"))); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}
