package http_request

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
	"github.com/zclconf/go-cty/cty"
)

const unitName = "http_request"

// Module implements the module.Module interface for this package.
type Module struct{}

// Run fetches the URL from setting "http_request.url" with the method from
// "http_request.method" (default GET) and returns the response status and
// body. Non-2xx statuses are returned, not treated as failures.
func Run(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
	url, ok := svc.Setting(unitName + ".url")
	if !ok || url == "" {
		return nil, fmt.Errorf("setting '%s.url' is required", unitName)
	}
	method, ok := svc.Setting(unitName + ".method")
	if !ok || method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	logger := svc.Logger().WithName(unitName)
	logger.Info("Making HTTP request", "method", method, "url", url)

	resp, err := svc.HTTP().R().
		SetContext(ctx).
		Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	logger.Info("Received HTTP response", "status", resp.Status())

	return cty.ObjectVal(map[string]cty.Value{
		"http_status_code": cty.NumberIntVal(int64(resp.StatusCode())),
		"http_body":        cty.StringVal(resp.String()),
	}), nil
}

// Register registers the unit with the engine.
func (m *Module) Register(t *module.Table) {
	t.Register(unitName, "run", Run)
}
