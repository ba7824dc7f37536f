package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

const unitName = "s3"

// Module implements the module.Module interface for this package.
type Module struct{}

// Upload PUTs the current context as a JSON document to the pre-signed URL
// from setting "s3.upload_url".
func Upload(ctx context.Context, in contextstore.View, svc module.Services) (any, error) {
	uploadURL, ok := svc.Setting(unitName + ".upload_url")
	if !ok || uploadURL == "" {
		return nil, fmt.Errorf("setting '%s.upload_url' is required", unitName)
	}
	logger := svc.Logger().WithName(unitName).WithValues("action", "upload")

	body, err := contextJSON(in)
	if err != nil {
		return nil, err
	}

	logger.Info("Uploading context to S3", "size", len(body), "contentType", "application/json")

	resp, err := svc.HTTP().R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetContentLength(true).
		SetBody(body).
		Put(uploadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("S3 upload failed with status: %s", resp.Status())
	}

	logger.Info("Successfully uploaded context", "status", resp.Status())

	return cty.ObjectVal(map[string]cty.Value{
		"s3_upload_status": cty.StringVal(resp.Status()),
		"s3_upload_bytes":  cty.NumberIntVal(int64(len(body))),
	}), nil
}

func contextJSON(in contextstore.View) ([]byte, error) {
	doc := make(map[string]any, in.Len())
	for _, k := range in.Keys() {
		v, _ := in.Get(k)
		doc[k] = value.ToGo(v)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding context: %w", err)
	}
	return b, nil
}

// Register registers the unit with the engine.
func (m *Module) Register(t *module.Table) {
	t.Register(unitName, "upload", Upload)
}
