package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/buffer"
	"github.com/dreamware/relay/internal/config"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/wire"
	"github.com/dreamware/relay/internal/wsconn"
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("hub stopped")

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	// TickHz is the position loop frequency, clamped to [1, 60]. Default 20.
	TickHz int

	// Grace is the delay between a tickPositions broadcast and the drain of
	// the merged buffer, giving shards time to flush. Default 20ms, and
	// always shorter than the tick period: a grace at or beyond the period
	// is cut to half a period.
	Grace time.Duration

	// PresenceInterval is the presence loop period. Default 1s.
	PresenceInterval time.Duration

	// InboxSize bounds the number of queued events. Default 1024.
	InboxSize int

	Logger  *zap.Logger
	Metrics *metrics.Hub
}

func (o Options) withDefaults() Options {
	o.TickHz = config.ClampTickHz(o.TickHz)
	if o.Grace <= 0 {
		o.Grace = 20 * time.Millisecond
	}
	if period := o.period(); o.Grace >= period {
		o.Grace = period / 2
	}
	if o.PresenceInterval <= 0 {
		o.PresenceInterval = time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 1024
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

func (o Options) period() time.Duration {
	return time.Second / time.Duration(o.TickHz)
}

// Snapshot is a point-in-time view of hub state for introspection.
type Snapshot struct {
	Shards   []int        `json:"shards"`
	Uplinks  int          `json:"uplinks"`
	Links    []Link       `json:"links"`
	Presence []string     `json:"presence"`
	Pending  int          `json:"pending"`
	Buffer   buffer.Stats `json:"buffer"`
	Running  bool         `json:"running"`
}

// Hub is the global coordinator. It owns the shard registrations and the
// merged position buffer, and drives the position and presence loops.
//
// All state lives on the goroutine running Run. Socket readers, timers and
// callers interact with it only by posting events to the inbox.
//
// Lifecycle:
//   - Run starts the actor; nothing is processed before it
//   - The first shard uplink starts both loops
//   - Removing the last uplink stops both loops and drops buffered samples
//   - Canceling Run's context closes every uplink
type Hub struct {
	opts  Options
	log   *zap.Logger
	inbox chan event
	done  chan struct{}

	// Owned by the Run goroutine.
	registry  *Registry
	positions *buffer.Positions
	posLoop   *Ticker
	presLoop  *Ticker
	runCtx    context.Context
}

// New creates a hub. Call Run to start it.
func New(opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		opts:      opts,
		log:       opts.Logger.With(zap.String("component", "hub")),
		inbox:     make(chan event, opts.InboxSize),
		done:      make(chan struct{}),
		registry:  NewRegistry(),
		positions: buffer.NewPositions(),
	}
	h.posLoop = NewTicker("positions", opts.period(), func(ctx context.Context) {
		h.post(ctx, tickPositions{})
	}, h.log)
	h.presLoop = NewTicker("presence", opts.PresenceInterval, func(ctx context.Context) {
		h.post(ctx, tickPresence{})
	}, h.log)
	return h
}

// Run processes events until ctx is canceled. It closes every uplink before
// returning. Run must be called exactly once.
func (h *Hub) Run(ctx context.Context) error {
	h.runCtx = ctx
	defer close(h.done)
	defer h.shutdown()

	h.log.Info("hub running",
		zap.Int("tick_hz", h.opts.TickHz),
		zap.Duration("grace", h.opts.Grace),
		zap.Duration("presence_interval", h.opts.PresenceInterval))

	for {
		select {
		case ev := <-h.inbox:
			h.handle(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

// Accept attaches a shard uplink and reads from it until it closes. It
// blocks for the lifetime of the link, so callers typically run it on the
// goroutine that owns the socket.
//
// Parameters:
//   - ctx: Bounds only the initial registration
//   - conn: The uplink; Accept closes it on return
//   - shardID: The bucket the shard speaks for
func (h *Hub) Accept(ctx context.Context, conn wsconn.Conn, shardID int) error {
	if !h.post(ctx, shardConnected{conn: conn, shardID: shardID}) {
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStopped
	}
	defer func() {
		_ = conn.Close()
		h.post(context.Background(), shardDisconnected{connID: conn.ID()})
	}()

	for {
		data, err := conn.Receive()
		if err != nil {
			return nil
		}
		if !h.post(context.Background(), shardMessage{connID: conn.ID(), data: data}) {
			return ErrStopped
		}
	}
}

// Snapshot returns the current hub state.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !h.post(ctx, snapshotRequest{reply: reply}) {
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
		return Snapshot{}, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-h.done:
		return Snapshot{}, ErrStopped
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// post enqueues ev. It reports false if the hub stopped or ctx ended first.
func (h *Hub) post(ctx context.Context, ev event) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- ev:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) handle(ev event) {
	switch e := ev.(type) {
	case shardConnected:
		h.onShardConnect(e)
	case shardMessage:
		h.onShardMessage(e)
	case shardDisconnected:
		h.onShardDisconnect(e)
	case tickPositions:
		h.onTickPositions()
	case drainPositions:
		h.onDrainPositions()
	case tickPresence:
		h.onTickPresence()
	case snapshotRequest:
		e.reply <- h.snapshot()
	}
}

func (h *Hub) onShardConnect(e shardConnected) {
	h.registry.Add(e.conn, e.shardID)
	h.opts.Metrics.SetShards(h.registry.Len())
	h.log.Info("shard connected",
		zap.Int("shard", e.shardID),
		zap.String("conn", e.conn.ID()),
		zap.Int("uplinks", h.registry.Len()))

	if !h.posLoop.Running() {
		h.posLoop.Start(h.runCtx)
		h.presLoop.Start(h.runCtx)
		h.opts.Metrics.LoopsRunning(true)
	}
}

func (h *Hub) onShardMessage(e shardMessage) {
	msg, err := wire.Decode(e.data)
	if err != nil {
		h.log.Debug("dropping shard frame", zap.String("conn", e.connID), zap.Error(err))
		return
	}
	switch msg.Kind {
	case wire.KindPositions:
		h.positions.Merge(msg.Positions)
	case wire.KindPresence:
		h.registry.SetPresence(e.connID, msg.Presence)
	default:
		h.log.Debug("ignoring shard frame", zap.String("conn", e.connID), zap.Stringer("kind", msg.Kind))
	}
}

func (h *Hub) onShardDisconnect(e shardDisconnected) {
	reg := h.registry.Remove(e.connID)
	if reg == nil {
		return
	}
	h.opts.Metrics.SetShards(h.registry.Len())
	h.log.Info("shard disconnected",
		zap.Int("shard", reg.ShardID),
		zap.String("conn", e.connID),
		zap.Int("uplinks", h.registry.Len()))

	if h.registry.Len() == 0 {
		h.stopLoops()
	}
}

// onTickPositions asks every shard to flush, then schedules the drain.
func (h *Hub) onTickPositions() {
	if h.registry.Len() == 0 {
		return
	}
	h.opts.Metrics.Tick()
	h.broadcast(wire.EncodeTick(), "tick")
	time.AfterFunc(h.opts.Grace, func() {
		h.post(h.runCtx, drainPositions{})
	})
}

func (h *Hub) onDrainPositions() {
	samples := h.positions.Drain()
	if len(samples) == 0 || h.registry.Len() == 0 {
		return
	}
	data, err := wire.EncodePositions(samples)
	if err != nil {
		h.log.Error("encode positions", zap.Error(err))
		return
	}
	h.opts.Metrics.Batch(len(samples))
	h.broadcast(data, wire.TypePositions)
}

func (h *Hub) onTickPresence() {
	if h.registry.Len() == 0 {
		return
	}
	union := h.registry.PresenceUnion()
	data, err := wire.EncodePresence(union)
	if err != nil {
		h.log.Error("encode presence", zap.Error(err))
		return
	}
	h.opts.Metrics.Presence(len(union))
	h.broadcast(data, wire.TypePresence)
}

// broadcast sends data to every uplink. Failures are counted and otherwise
// ignored; the reader goroutine reports the disconnect.
func (h *Hub) broadcast(data []byte, kind string) {
	for _, conn := range h.registry.Conns() {
		if err := conn.Send(data); err != nil {
			h.opts.Metrics.SendFailed(kind)
			h.log.Debug("send to shard failed",
				zap.String("conn", conn.ID()),
				zap.String("kind", kind),
				zap.Error(err))
		}
	}
}

func (h *Hub) stopLoops() {
	if !h.posLoop.Running() {
		return
	}
	h.posLoop.Stop()
	h.presLoop.Stop()
	h.positions.Reset()
	h.opts.Metrics.LoopsRunning(false)
}

func (h *Hub) snapshot() Snapshot {
	return Snapshot{
		Shards:   h.registry.Shards(),
		Uplinks:  h.registry.Len(),
		Links:    h.registry.Links(),
		Presence: h.registry.PresenceUnion(),
		Pending:  h.positions.Len(),
		Buffer:   h.positions.Stats(),
		Running:  h.posLoop.Running(),
	}
}

func (h *Hub) shutdown() {
	h.stopLoops()
	n := h.registry.Len()
	h.registry.CloseAll()
	h.opts.Metrics.SetShards(0)
	h.log.Info("hub stopped", zap.Int("closed_uplinks", n))
}
