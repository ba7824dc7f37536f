// Package hclregistry is a registry backed by HCL files, for running without
// a database. Each file holds any number of module blocks:
//
//	module "hello_module_v1" {
//	  version       = "1.0.0"
//	  script_path   = "src/modules/context/hello_module_v1.py"
//	  function_name = "run"
//	  is_active     = true # optional, defaults to true
//	}
//
// Files are re-read on every lookup, so edits take effect on the next run
// without restarting anything.
package hclregistry

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/fsutil"
	"github.com/vk/modgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// fileRoot decodes the top level of a registry file.
type fileRoot struct {
	Modules []*moduleBlock `hcl:"module,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type moduleBlock struct {
	ID           string         `hcl:"id,label"`
	Version      hcl.Expression `hcl:"version,optional"`
	ScriptPath   string         `hcl:"script_path"`
	FunctionName string         `hcl:"function_name"`
	IsActive     *bool          `hcl:"is_active,optional"`
}

// Registry implements registry.Registry over a set of HCL files and directories.
type Registry struct {
	paths []string
}

var _ registry.Registry = (*Registry)(nil)

// New creates a registry reading the given files and directories.
func New(paths ...string) *Registry {
	return &Registry{paths: append([]string(nil), paths...)}
}

// FindActive implements registry.Registry. Unreadable or malformed files make
// the registry unavailable rather than hiding the module.
func (r *Registry) FindActive(ctx context.Context, moduleID string) (*registry.Descriptor, error) {
	logger := ctxlog.FromContext(ctx)

	records, err := Load(ctx, r.paths...)
	if err != nil {
		return nil, registry.Unavailable(moduleID, err)
	}

	d, ok := registry.SelectActive(records, moduleID)
	if !ok {
		logger.Warn("Module not found or inactive in registry files.", "module_id", moduleID, "records", len(records))
		return nil, registry.NotFound(moduleID)
	}
	logger.Debug("Found active module in registry files.", "module_id", moduleID, "version", d.Version)
	return d, nil
}

// Load parses every .hcl file under paths and returns their module records
// in source order.
func Load(ctx context.Context, paths ...string) ([]registry.Descriptor, error) {
	logger := ctxlog.FromContext(ctx)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no registry paths configured")
	}

	files, err := fsutil.FindFilesByExtension(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered registry files.", "count", len(files))

	parser := hclparse.NewParser()
	var records []registry.Descriptor

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, m := range root.Modules {
			d, err := translate(m)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			records = append(records, d)
		}
	}

	logger.Debug("Registry files loaded.", "records", len(records))
	return records, nil
}

func translate(m *moduleBlock) (registry.Descriptor, error) {
	d := registry.Descriptor{
		ModuleID: m.ID,
		Entry:    registry.EntryReference{ScriptPath: m.ScriptPath, FunctionName: m.FunctionName},
		IsActive: true,
	}
	if m.ID == "" {
		return d, fmt.Errorf("module block has an empty id")
	}
	if m.IsActive != nil {
		d.IsActive = *m.IsActive
	}

	version, err := versionString(m.Version)
	if err != nil {
		return d, fmt.Errorf("module '%s': %w", m.ID, err)
	}
	d.Version = version
	return d, nil
}

// versionString accepts the version attribute as a string or a number.
func versionString(expr hcl.Expression) (string, error) {
	if expr == nil {
		return "", nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("invalid version: %w", diags)
	}
	if val.IsNull() {
		return "", nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("version must be a string or a number: %w", err)
	}
	if !str.IsKnown() || str.IsNull() {
		return "", nil
	}
	return str.AsString(), nil
}
