package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/vk/modgrid/internal/app"
	"github.com/vk/modgrid/internal/fault"
)

// DefaultModule is run when neither --module nor MODGRID_MODULE is set.
const DefaultModule = "hello_module_v1"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// envFallbacks maps flags to the environment variables consulted when the
// flag is not given on the command line.
var envFallbacks = map[string]string{
	"module":        "MODGRID_MODULE",
	"registry":      "MODGRID_REGISTRY",
	"registry-path": "MODGRID_REGISTRY_PATH",
	"sink":          "MODGRID_SINKS",
	"events-file":   "MODGRID_EVENTS_FILE",
	"socketio-url":  "MODGRID_SOCKETIO_URL",
	"log-format":    "MODGRID_LOG_FORMAT",
	"log-level":     "MODGRID_LOG_LEVEL",
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := pflag.NewFlagSet("modgrid", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.SortFlags = false

	flagSet.Usage = func() {
		fmt.Fprint(output, `
modgrid - runs one registered module against a fresh context and records the outcome.

Usage:
  modgrid [options]

Environment:
  SUPABASE_URL, SUPABASE_SERVICE_KEY   Supabase project used by the postgrest registry and sink.
  MODGRID_MODULE                       Default target module id.

Options:
`)
		flagSet.PrintDefaults()
	}

	moduleFlag := flagSet.StringP("module", "m", DefaultModule, "Identifier of the module to run.")
	registryFlag := flagSet.String("registry", app.RegistryPostgREST, "Registry backend: 'postgrest' or 'file'.")
	registryPathFlag := flagSet.StringSlice("registry-path", nil, "HCL registry file or directory (file registry, repeatable).")
	sinkFlag := flagSet.StringSlice("sink", nil, "Event sink: 'postgrest', 'file' or 'socketio' (repeatable). Defaults to the registry backend.")
	eventsFileFlag := flagSet.String("events-file", "", "JSON lines file written by the file sink.")
	socketIOURLFlag := flagSet.String("socketio-url", "", "Socket.IO server receiving terminal events.")
	socketIONamespaceFlag := flagSet.String("socketio-namespace", "/", "Socket.IO namespace.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	timeoutFlag := flagSet.Duration("invoke-timeout", 0, "Deadline for the module call. 0 means no deadline.")
	strictFlag := flagSet.Bool("strict-returns", false, "Fail the run when a module returns something other than a mapping.")
	settingFlag := flagSet.StringArray("setting", nil, "Module setting as key=value (repeatable).")
	envFileFlag := flagSet.String("env-file", ".env", "Dotenv file loaded before reading the environment.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: fault.ExitUsage, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: fault.ExitUsage, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))}
	}
	slog.Debug("Arguments parsed successfully.")

	if err := loadEnvFile(*envFileFlag); err != nil {
		return nil, false, &ExitError{Code: fault.ExitStartup, Message: err.Error()}
	}

	// Flags given explicitly win over the environment.
	for name, key := range envFallbacks {
		if flagSet.Changed(name) {
			continue
		}
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if err := flagSet.Set(name, v); err != nil {
				return nil, false, &ExitError{Code: fault.ExitUsage, Message: fmt.Sprintf("invalid %s: %v", key, err)}
			}
		}
	}

	settings, err := parseSettings(*settingFlag)
	if err != nil {
		return nil, false, &ExitError{Code: fault.ExitUsage, Message: err.Error()}
	}

	config, err := app.NewConfig(app.Config{
		ModuleID:           strings.TrimSpace(*moduleFlag),
		Registry:           *registryFlag,
		RegistryPaths:      *registryPathFlag,
		Sinks:              *sinkFlag,
		EventsFile:         *eventsFileFlag,
		SocketIOURL:        *socketIOURLFlag,
		SocketIONamespace:  *socketIONamespaceFlag,
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		LogFormat:          strings.ToLower(*logFormatFlag),
		LogLevel:           strings.ToLower(*logLevelFlag),
		HealthcheckPort:    *healthPortFlag,
		InvokeTimeout:      *timeoutFlag,
		StrictReturns:      *strictFlag,
		Settings:           settings,
	})
	if err != nil {
		return nil, false, &ExitError{Code: fault.ExitStartup, Message: "invalid configuration: " + err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "module_id", config.ModuleID, "registry", config.Registry)
	return config, false, nil
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No env file found.", "path", path)
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Env file loaded.", "path", path)
	return nil
}

func parseSettings(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	settings := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q: expected key=value", p)
		}
		settings[k] = v
	}
	return settings, nil
}
