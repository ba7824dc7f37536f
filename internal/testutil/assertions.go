package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/modgrid/internal/logsink"
)

// AssertSingleTerminalEvent checks that the run recorded exactly one event,
// on the given stream and stage, and returns it.
func AssertSingleTerminalEvent(t *testing.T, result *HarnessResult, stream logsink.Stream, stage logsink.Stage) logsink.Event {
	t.Helper()

	events := result.Events.Events()
	require.Len(t, events, 1, "a run must record exactly one terminal event")
	ev := events[0]
	require.Equal(t, stream, ev.Stream, "unexpected stream for event %q", ev.Message)
	require.Equal(t, stage, ev.Stage, "unexpected stage for event %q", ev.Message)
	require.Equal(t, result.Outcome.RunID, ev.RunID)
	return ev
}
