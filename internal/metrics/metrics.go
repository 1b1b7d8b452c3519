// Package metrics defines the Prometheus collectors for the hub, shard and
// edge components. Every recorder method is safe to call on a nil receiver,
// so components built without metrics skip recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sample outcomes recorded by Shard.Sample.
const (
	SampleAccepted  = "accepted"
	SampleAnonymous = "anonymous"
	SampleInvalid   = "invalid"
)

var sizeBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

// Hub records coordinator activity.
type Hub struct {
	shards       prometheus.Gauge
	ticks        prometheus.Counter
	batchSize    prometheus.Histogram
	presence     prometheus.Gauge
	sendFailures *prometheus.CounterVec
	loops        prometheus.Gauge
}

// NewHub registers the hub collectors with reg, or the default registerer when reg is nil.
func NewHub(reg prometheus.Registerer) *Hub {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Hub{
		shards: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_hub_shards_connected",
			Help: "Shard uplinks currently registered with the hub.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_hub_ticks_total",
			Help: "tickPositions broadcasts sent.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_hub_batch_size",
			Help:    "Samples per merged positions batch.",
			Buckets: sizeBuckets,
		}),
		presence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_hub_presence_size",
			Help: "Addresses in the last presence broadcast.",
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_hub_send_failures_total",
			Help: "Best-effort sends to shards that failed, by message kind.",
		}, []string{"kind"}),
		loops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_hub_loops_running",
			Help: "1 while the tick and presence loops are running.",
		}),
	}
	reg.MustRegister(m.shards, m.ticks, m.batchSize, m.presence, m.sendFailures, m.loops)
	return m
}

func (m *Hub) SetShards(n int) {
	if m == nil {
		return
	}
	m.shards.Set(float64(n))
}

func (m *Hub) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Hub) Batch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

func (m *Hub) Presence(size int) {
	if m == nil {
		return
	}
	m.presence.Set(float64(size))
}

func (m *Hub) SendFailed(kind string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(kind).Inc()
}

func (m *Hub) LoopsRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.loops.Set(1)
		return
	}
	m.loops.Set(0)
}

// Shard records per-shard activity, labelled by shard name.
type Shard struct {
	clients      *prometheus.GaugeVec
	samples      *prometheus.CounterVec
	flushes      *prometheus.CounterVec
	uplinks      *prometheus.CounterVec
	sendFailures *prometheus.CounterVec
}

// NewShard registers the shard collectors with reg, or the default registerer when reg is nil.
func NewShard(reg prometheus.Registerer) *Shard {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Shard{
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_shard_clients",
			Help: "Client sessions attached to the shard.",
		}, []string{"shard"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_shard_samples_total",
			Help: "Client motion frames by outcome.",
		}, []string{"shard", "outcome"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_shard_flushes_total",
			Help: "Non-empty positions batches sent to the hub.",
		}, []string{"shard"}),
		uplinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_shard_uplinks_total",
			Help: "Hub uplink lifecycle events by result.",
		}, []string{"shard", "result"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_shard_send_failures_total",
			Help: "Best-effort sends that failed, by peer.",
		}, []string{"shard", "peer"}),
	}
	reg.MustRegister(m.clients, m.samples, m.flushes, m.uplinks, m.sendFailures)
	return m
}

func (m *Shard) SetClients(shard string, n int) {
	if m == nil {
		return
	}
	m.clients.WithLabelValues(shard).Set(float64(n))
}

func (m *Shard) Sample(shard, outcome string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(shard, outcome).Inc()
}

func (m *Shard) Flush(shard string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(shard).Inc()
}

// Uplink records "opened", "failed" or "lost".
func (m *Shard) Uplink(shard, result string) {
	if m == nil {
		return
	}
	m.uplinks.WithLabelValues(shard, result).Inc()
}

func (m *Shard) SendFailed(shard, peer string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(shard, peer).Inc()
}

// Edge records connection attempts at the router.
type Edge struct {
	connects     *prometheus.CounterVec
	authFailures *prometheus.CounterVec
	provision    prometheus.Histogram
}

// NewEdge registers the edge collectors with reg, or the default registerer when reg is nil.
func NewEdge(reg prometheus.Registerer) *Edge {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Edge{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_edge_connects_total",
			Help: "Connect requests by outcome.",
		}, []string{"outcome"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_edge_auth_failures_total",
			Help: "Rejected sessions by reason.",
		}, []string{"reason"}),
		provision: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_edge_provision_seconds",
			Help:    "Time spent ensuring the target shard exists.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
	}
	reg.MustRegister(m.connects, m.authFailures, m.provision)
	return m
}

func (m *Edge) Connect(outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(outcome).Inc()
}

func (m *Edge) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *Edge) ObserveProvision(d time.Duration) {
	if m == nil {
		return
	}
	m.provision.Observe(d.Seconds())
}
