package logsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/fault"
)

// BestEffort wraps a Sink so that writing never fails the caller. A failed
// write is reported once on the console logger and to the optional failure
// callback; it is never retried and never written to another stream.
type BestEffort struct {
	sink      Sink
	onFailure func(ev Event, err error)
}

// NewBestEffort wraps sink. onFailure may be nil.
func NewBestEffort(sink Sink, onFailure func(ev Event, err error)) *BestEffort {
	return &BestEffort{sink: sink, onFailure: onFailure}
}

// Emit writes ev and returns the number of rows written.
func (b *BestEffort) Emit(ctx context.Context, ev Event) (rows int) {
	defer func() {
		if r := recover(); r != nil {
			rows = 0
			b.fail(ctx, ev, fmt.Errorf("sink panicked: %v", r))
		}
	}()

	if b.sink == nil {
		b.fail(ctx, ev, fmt.Errorf("no sink configured"))
		return 0
	}

	rows, err := b.sink.Append(ctx, ev)
	if err != nil {
		b.fail(ctx, ev, err)
	}
	return rows
}

func (b *BestEffort) fail(ctx context.Context, ev Event, err error) {
	err = fault.Wrap(fault.ErrLogSink, ev.ModuleID, err, "writing %s event", ev.Stream)

	record, marshalErr := json.Marshal(ev)
	if marshalErr != nil {
		record = []byte(fmt.Sprintf("%q", ev.Message))
	}
	ctxlog.FromContext(ctx).Log(ctx, ctxlog.LevelCritical, "Failed to write terminal event.",
		"stream", string(ev.Stream),
		"error", err,
		"event", string(record),
	)

	if b.onFailure != nil {
		b.onFailure(ev, err)
	}
}
