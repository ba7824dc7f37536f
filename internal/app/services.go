package app

import (
	"io"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/vk/modgrid/internal/module"
	"resty.dev/v3"
)

// services is the handle every module receives. The App owns it and closes
// its HTTP client on shutdown.
type services struct {
	logger   logr.Logger
	settings map[string]string
	http     *resty.Client
	out      io.Writer
}

var _ module.Services = (*services)(nil)

func newServices(logger *slog.Logger, settings map[string]string, out io.Writer) *services {
	copied := make(map[string]string, len(settings))
	for k, v := range settings {
		copied[k] = v
	}
	return &services{
		logger:   logr.FromSlogHandler(logger.Handler()).WithName("module"),
		settings: copied,
		http:     resty.New().SetHeader("User-Agent", "modgrid"),
		out:      out,
	}
}

func (s *services) Logger() logr.Logger { return s.logger }

func (s *services) Setting(key string) (string, bool) {
	v, ok := s.settings[key]
	return v, ok
}

func (s *services) HTTP() *resty.Client { return s.http }

func (s *services) Output() io.Writer { return s.out }

func (s *services) close() error {
	return s.http.Close()
}
