package http_request

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/module/moduletest"
	"github.com/zclconf/go-cty/cty"
)

func TestRun(t *testing.T) {
	// --- Arrange ---
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	defer srv.Close()

	svc := &moduletest.Services{Settings: map[string]string{
		"http_request.url":    srv.URL,
		"http_request.method": "post",
	}}

	// --- Act ---
	out, err := moduletest.Call(Run, nil, svc)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)

	v := out.(cty.Value)
	code, _ := v.GetAttr("http_status_code").AsBigFloat().Int64()
	assert.Equal(t, int64(http.StatusTeapot), code)
	assert.Equal(t, "short and stout", v.GetAttr("http_body").AsString())
}

func TestRun_Errors(t *testing.T) {
	_, err := moduletest.Call(Run, nil, &moduletest.Services{})
	assert.ErrorContains(t, err, "setting 'http_request.url' is required")

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err = moduletest.Call(Run, nil, &moduletest.Services{Settings: map[string]string{"http_request.url": url}})
	assert.ErrorContains(t, err, "failed to execute request")
}
