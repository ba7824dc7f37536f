package logsink

import (
	"context"
	"io"

	"go.uber.org/multierr"
)

// Multi writes every event to each of its sinks. A failing sink does not stop
// the others; rows are summed and errors combined.
type Multi []Sink

// Append implements Sink.
func (m Multi) Append(ctx context.Context, ev Event) (int, error) {
	var (
		rows int
		err  error
	)
	for _, s := range m {
		n, appendErr := s.Append(ctx, ev)
		rows += n
		err = multierr.Append(err, appendErr)
	}
	return rows, err
}

// Close closes every sink that implements io.Closer.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
