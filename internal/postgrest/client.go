// Package postgrest talks to a Supabase project through its PostgREST API.
//
// The same client serves as the module registry (table Module_Registry) and
// as a log sink (tables Pipeline_Log and Error_Log).
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/logsink"
	"github.com/vk/modgrid/internal/registry"
	"go.uber.org/multierr"
	"resty.dev/v3"
)

const (
	restPrefix    = "/rest/v1/"
	registryTable = "Module_Registry"

	defaultTimeout = 10 * time.Second
)

// Config holds the connection settings.
type Config struct {
	URL        string
	ServiceKey string
	Timeout    time.Duration
}

// Validate reports every missing or malformed setting.
func (c Config) Validate() error {
	var err error
	if c.URL == "" {
		err = multierr.Append(err, errors.New("SUPABASE_URL is not set"))
	} else if u, parseErr := url.Parse(c.URL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("SUPABASE_URL %q is not an absolute URL", c.URL))
	}
	if c.ServiceKey == "" {
		err = multierr.Append(err, errors.New("SUPABASE_SERVICE_KEY is not set"))
	}
	return err
}

// Client is a registry.Registry and a logsink.Sink.
type Client struct {
	http *resty.Client
}

var (
	_ registry.Registry = (*Client)(nil)
	_ logsink.Sink      = (*Client)(nil)
)

// New creates a client. The service key is sent both as the apikey header
// and as a bearer token, as Supabase expects.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetHeader("apikey", cfg.ServiceKey).
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.ServiceKey)

	return &Client{http: c}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// registryRow is one Module_Registry record.
type registryRow struct {
	ModuleID     string  `json:"module_id"`
	Version      version `json:"version"`
	ScriptPath   string  `json:"script_path"`
	FunctionName string  `json:"function_name"`
	IsActive     bool    `json:"is_active"`
}

// version accepts the column as text or as a number.
type version string

func (v *version) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = version(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("version must be a string or a number: %w", err)
		}
		*v = version(n.String())
	}
	return nil
}

// FindActive implements registry.Registry. Every active record for the id is
// fetched so the tie-break of registry.SelectActive applies.
func (c *Client) FindActive(ctx context.Context, moduleID string) (*registry.Descriptor, error) {
	logger := ctxlog.FromContext(ctx)
	if moduleID == "" {
		return nil, registry.NotFound(moduleID)
	}

	logger.Info("Querying module registry.", "table", registryTable, "module_id", moduleID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":    "*",
			"module_id": "eq." + moduleID,
			"is_active": "eq.true",
		}).
		Get(restPrefix + registryTable)
	if err != nil {
		return nil, registry.Unavailable(moduleID, err)
	}
	if !resp.IsSuccess() {
		return nil, registry.Unavailable(moduleID, fmt.Errorf("%s: %s", resp.Status(), resp.String()))
	}

	var rows []registryRow
	if err := json.Unmarshal(resp.Bytes(), &rows); err != nil {
		return nil, registry.Unavailable(moduleID, fmt.Errorf("decoding %s response: %w", registryTable, err))
	}
	logger.Debug("Registry response received.", "rows", len(rows))

	records := make([]registry.Descriptor, 0, len(rows))
	for _, r := range rows {
		records = append(records, registry.Descriptor{
			ModuleID: r.ModuleID,
			Version:  string(r.Version),
			Entry:    registry.EntryReference{ScriptPath: r.ScriptPath, FunctionName: r.FunctionName},
			IsActive: r.IsActive,
		})
	}

	d, ok := registry.SelectActive(records, moduleID)
	if !ok {
		logger.Warn("Module not found or is not active in the registry.", "module_id", moduleID)
		return nil, registry.NotFound(moduleID)
	}
	logger.Info("Found active module details.", "module_id", moduleID, "version", d.Version)
	return d, nil
}

// logRow is the column layout shared by Pipeline_Log and Error_Log. The
// error table names its message column error_message.
type logRow struct {
	ModuleID        string                 `json:"module_id"`
	ModuleVersion   *string                `json:"module_version,omitempty"`
	Message         string                 `json:"message,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Stage           logsink.Stage          `json:"stage"`
	LogLevel        logsink.Level          `json:"log_level"`
	Traceback       string                 `json:"traceback,omitempty"`
	ContextSnapshot *contextstore.Snapshot `json:"context_snapshot,omitempty"`
}

func newLogRow(ev logsink.Event) logRow {
	row := logRow{
		ModuleID:        ev.ModuleID,
		ModuleVersion:   ev.ModuleVersion,
		Stage:           ev.Stage,
		LogLevel:        ev.Level,
		Traceback:       ev.Traceback,
		ContextSnapshot: ev.ContextSnapshot,
	}
	if ev.Stream == logsink.ErrorLog {
		row.ErrorMessage = ev.Message
	} else {
		row.Message = ev.Message
	}
	return row
}

// Append implements logsink.Sink. The rows-written count is the number of
// records the server echoes back.
func (c *Client) Append(ctx context.Context, ev logsink.Event) (int, error) {
	table := ev.Stream.Table()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=representation").
		SetBody(newLogRow(ev)).
		Post(restPrefix + table)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("inserting into %s: %s: %s", table, resp.Status(), resp.String())
	}

	var echoed []json.RawMessage
	if err := json.Unmarshal(resp.Bytes(), &echoed); err != nil {
		return 0, fmt.Errorf("decoding %s insert response: %w", table, err)
	}
	if len(echoed) == 0 {
		return 0, fmt.Errorf("insert into %s returned no rows", table)
	}
	return len(echoed), nil
}
