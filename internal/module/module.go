// Package module defines the invocation ABI that plugin units implement and
// the registration table that maps entry references to compiled Go functions.
//
// There is no dynamic loading: every unit registers its callables once at
// startup, and resolving an entry reference is a table lookup.
package module

import (
	"context"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/vk/modgrid/internal/contextstore"
	"resty.dev/v3"
)

// Func is the callable every module exposes. It receives a read-only view of
// the run context and the shared services handle, and returns the context
// updates it wants applied. The return value is the only channel for context
// changes; anything that is not a mapping is treated according to the
// invoker's return policy.
type Func func(ctx context.Context, in contextstore.View, svc Services) (any, error)

// Services is the opaque handle shared with modules. It is owned by the
// process, not by the module: modules must not close anything reachable from
// it.
type Services interface {
	// Logger is a structured logger scoped to the current run.
	Logger() logr.Logger
	// Setting returns an operator-supplied setting (see --setting).
	Setting(key string) (string, bool)
	// HTTP is a shared REST client.
	HTTP() *resty.Client
	// Output is where modules write user-facing output.
	Output() io.Writer
}

// Module is implemented by every unit package to add its callables to a table.
type Module interface {
	Register(t *Table)
}

// nopServices has no settings and discards all output.
type nopServices struct {
	once   sync.Once
	client *resty.Client
}

// NopServices returns a Services with no settings, a discarding logger and a
// discarding output.
func NopServices() Services { return &nopServices{} }

func (*nopServices) Logger() logr.Logger               { return logr.Discard() }
func (*nopServices) Setting(key string) (string, bool) { return "", false }
func (*nopServices) Output() io.Writer                 { return io.Discard }

func (s *nopServices) HTTP() *resty.Client {
	s.once.Do(func() { s.client = resty.New() })
	return s.client
}
