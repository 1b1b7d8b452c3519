package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHub(reg)
	require.NotNil(t, m)

	m.SetShards(3)
	m.Tick()
	m.Tick()
	m.Batch(4)
	m.Presence(7)
	m.SendFailed("tick")
	m.LoopsRunning(true)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.shards))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.presence))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailures.WithLabelValues("tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loops))

	m.LoopsRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.loops))
}

func TestShardMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShard(reg)

	m.SetClients("shard-0", 2)
	m.Sample("shard-0", SampleAccepted)
	m.Sample("shard-0", SampleAnonymous)
	m.Sample("shard-0", SampleAnonymous)
	m.Flush("shard-0")
	m.Uplink("shard-0", "opened")
	m.SendFailed("shard-0", "client")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.clients.WithLabelValues("shard-0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.samples.WithLabelValues("shard-0", SampleAnonymous)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("shard-0")))
}

func TestEdgeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEdge(reg)

	m.Connect("upgraded")
	m.AuthFailure("expired")
	m.ObserveProvision(3 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("upgraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authFailures.WithLabelValues("expired")))
}

// TestNilRecorders verifies that components built without metrics can record freely.
func TestNilRecorders(t *testing.T) {
	var h *Hub
	var s *Shard
	var e *Edge
	assert.NotPanics(t, func() {
		h.Tick()
		h.SetShards(1)
		h.Batch(1)
		h.Presence(1)
		h.SendFailed("x")
		h.LoopsRunning(true)
		s.SetClients("a", 1)
		s.Sample("a", SampleInvalid)
		s.Flush("a")
		s.Uplink("a", "lost")
		s.SendFailed("a", "hub")
		e.Connect("x")
		e.AuthFailure("x")
		e.ObserveProvision(time.Second)
	})
}
