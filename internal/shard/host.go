package shard

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
)

// HostOptions configures a Host.
type HostOptions struct {
	// Dialer is handed to every shard the host creates.
	Dialer Dialer

	// Region is reported back to the edge on provisioning.
	Region string

	Logger  *zap.Logger
	Metrics *metrics.Shard
}

// Host runs the shards placed on this process, creating each one the first
// time it is asked for.
//
// Shard management:
//   - Shards are created lazily by Ensure and live until Close
//   - Each shard runs its own actor goroutine
//   - The locality tag of the first Ensure sticks to the shard
//
// Concurrency model:
//   - The shard map is guarded by an RWMutex
//   - Lookups take the read lock; Ensure takes the write lock only on a miss
//
// Example:
//
//	host := NewHost(ctx, HostOptions{Dialer: LocalHub(h, 256)})
//	sh, created := host.Ensure(3, "eu-west")
//	go sh.Accept(ctx, conn, Meta{User: "0xaa", Channels: []string{"positions"}})
type Host struct {
	opts   HostOptions
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// shards maps shard IDs to their running actors.
	// Protected by mu.
	shards map[int]*Shard
	mu     sync.RWMutex
}

// NewHost creates a host whose shards run until ctx is canceled or Close is called.
func NewHost(ctx context.Context, opts HostOptions) *Host {
	ctx, cancel := context.WithCancel(ctx)
	return &Host{
		opts:   opts,
		log:    logging.OrNop(opts.Logger),
		ctx:    ctx,
		cancel: cancel,
		shards: make(map[int]*Shard),
	}
}

// Ensure returns the shard for id, starting it if it does not exist yet.
// It is idempotent: repeated calls return the same shard with created false.
//
// Parameters:
//   - id: Shard bucket
//   - locality: Opaque placement tag forwarded by the edge
//
// Returns:
//   - *Shard: The running shard
//   - bool: true if this call created it
func (h *Host) Ensure(id int, locality string) (*Shard, bool) {
	if s := h.Get(id); s != nil {
		return s, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.shards[id]; ok {
		return s, false
	}

	s := New(Options{
		ID:       id,
		Locality: locality,
		Dialer:   h.opts.Dialer,
		Logger:   h.opts.Logger,
		Metrics:  h.opts.Metrics,
	})
	h.shards[id] = s
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = s.Run(h.ctx)
	}()
	h.log.Info("shard started", zap.String("shard", cluster.ShardName(id)), zap.String("locality", locality))
	return s, true
}

// Get returns the shard for id, or nil if it has not been ensured.
func (h *Host) Get(id int) *Shard {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shards[id]
}

// Region is the region this host reports to the edge.
func (h *Host) Region() string {
	return h.opts.Region
}

// Infos returns the state of every shard, ordered by id. Shards that fail to
// answer before ctx ends are omitted.
func (h *Host) Infos(ctx context.Context) []cluster.ShardInfo {
	h.mu.RLock()
	shards := make([]*Shard, 0, len(h.shards))
	for _, s := range h.shards {
		shards = append(shards, s)
	}
	h.mu.RUnlock()

	out := make([]cluster.ShardInfo, 0, len(shards))
	for _, s := range shards {
		info, err := s.Info(ctx)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops every shard and waits for them to exit.
func (h *Host) Close() {
	h.cancel()
	h.wg.Wait()
}
