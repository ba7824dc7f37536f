// Package moduletest provides test doubles for code that calls or implements modules.
package moduletest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/vk/modgrid/internal/contextstore"
	"github.com/vk/modgrid/internal/module"
	"github.com/zclconf/go-cty/cty"
	"resty.dev/v3"
)

// Services is an in-memory module.Services.
type Services struct {
	Settings map[string]string
	Client   *resty.Client

	mu  sync.Mutex
	out bytes.Buffer
}

var _ module.Services = (*Services)(nil)

// Logger implements module.Services.
func (s *Services) Logger() logr.Logger { return logr.Discard() }

// Setting implements module.Services.
func (s *Services) Setting(key string) (string, bool) {
	v, ok := s.Settings[key]
	return v, ok
}

// HTTP implements module.Services.
func (s *Services) HTTP() *resty.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Client == nil {
		s.Client = resty.New()
	}
	return s.Client
}

// Output implements module.Services.
func (s *Services) Output() io.Writer { return &syncWriter{s} }

// Written returns everything modules wrote to Output.
func (s *Services) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

type syncWriter struct{ s *Services }

func (w *syncWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.out.Write(p)
}

// Context builds a read-only context from plain Go-typed cty values.
func Context(entries map[string]cty.Value) contextstore.View {
	s := contextstore.New()
	s.Merge(entries)
	return s.Snapshot()
}

// Call invokes fn directly with a background context.
func Call(fn module.Func, in contextstore.View, svc module.Services) (any, error) {
	if in == nil {
		in = contextstore.New().Snapshot()
	}
	return fn(context.Background(), in, svc)
}
