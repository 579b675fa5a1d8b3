package telemetry

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"skirmish/server/logging"
)

func TestWrapLoggerWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	WrapLogger(log.New(&buf, "", 0)).Printf("tick %d overran", 9)
	require.Equal(t, "tick 9 overran\n", buf.String())

	require.NotPanics(t, func() { WrapLogger(nil).Printf("dropped") })
}

func TestWrapMetricsCountsAndStores(t *testing.T) {
	var counters logging.Metrics
	metrics := WrapMetrics(&counters)

	metrics.Add("frames", 2)
	metrics.Add("frames", 3)
	metrics.Store("players", 4)
	metrics.Store("players", 1)

	require.Equal(t, map[string]uint64{"frames": 5, "players": 1}, counters.Snapshot())

	require.NotPanics(t, func() {
		WrapMetrics(nil).Add("ignored", 1)
		var missing *logging.Metrics
		WrapMetrics(missing).Store("ignored", 1)
	})
}
