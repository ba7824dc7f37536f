package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/modgrid/internal/postgrest"
	"go.uber.org/multierr"
)

// Registry backends.
const (
	RegistryPostgREST = "postgrest"
	RegistryFile      = "file"
)

// Sink backends.
const (
	SinkPostgREST = "postgrest"
	SinkFile      = "file"
	SinkSocketIO  = "socketio"
)

// DefaultEventsFile is used by the file sink when no path is given.
const DefaultEventsFile = "modgrid-events.jsonl"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ModuleID string

	Registry      string   // postgrest | file
	RegistryPaths []string // hcl files, file registry only

	Sinks             []string // postgrest | file | socketio
	EventsFile        string
	SocketIOURL       string
	SocketIONamespace string

	SupabaseURL        string
	SupabaseServiceKey string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	InvokeTimeout time.Duration
	StrictReturns bool

	// Settings are exposed to modules through Services.Setting.
	Settings map[string]string
}

// NewConfig applies defaults and validates cfg, reporting every problem at once.
func NewConfig(cfg Config) (*Config, error) {
	cfg.Registry = strings.ToLower(strings.TrimSpace(cfg.Registry))
	if cfg.Registry == "" {
		cfg.Registry = RegistryPostgREST
	}
	cfg.Sinks = append([]string(nil), cfg.Sinks...)
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []string{cfg.Registry}
	}
	for i, s := range cfg.Sinks {
		cfg.Sinks[i] = strings.ToLower(strings.TrimSpace(s))
	}
	if cfg.EventsFile == "" && cfg.hasSink(SinkFile) {
		cfg.EventsFile = DefaultEventsFile
	}
	if cfg.SocketIONamespace == "" {
		cfg.SocketIONamespace = "/"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	var err error
	if cfg.ModuleID == "" {
		err = multierr.Append(err, errors.New("a target module id is required"))
	}

	switch cfg.Registry {
	case RegistryPostgREST:
	case RegistryFile:
		if len(cfg.RegistryPaths) == 0 {
			err = multierr.Append(err, errors.New("the file registry needs at least one registry path"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown registry %q: must be 'postgrest' or 'file'", cfg.Registry))
	}

	seen := make(map[string]bool)
	for _, s := range cfg.Sinks {
		switch s {
		case SinkPostgREST, SinkFile:
		case SinkSocketIO:
			if cfg.SocketIOURL == "" {
				err = multierr.Append(err, errors.New("the socketio sink needs a socket.io URL"))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("unknown sink %q: must be 'postgrest', 'file' or 'socketio'", s))
		}
		if seen[s] {
			err = multierr.Append(err, fmt.Errorf("sink %q given more than once", s))
		}
		seen[s] = true
	}

	if cfg.Registry == RegistryPostgREST || cfg.hasSink(SinkPostgREST) {
		err = multierr.Append(err, cfg.postgrestConfig().Validate())
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel))
	}

	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort))
	}
	if cfg.InvokeTimeout < 0 {
		err = multierr.Append(err, errors.New("invoke timeout must not be negative"))
	}

	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) hasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c *Config) postgrestConfig() postgrest.Config {
	return postgrest.Config{URL: c.SupabaseURL, ServiceKey: c.SupabaseServiceKey}
}
