package shard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/relay/internal/buffer"
	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/wire"
	"github.com/dreamware/relay/internal/wsconn"
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("shard stopped")

// Meta is what the edge resolved for a client before handing it over.
// An empty User marks an anonymous observer.
type Meta struct {
	User     string
	Channels []string
}

// Options configures a Shard.
type Options struct {
	ID       int
	Locality string

	// Dialer opens the hub uplink. Required.
	Dialer Dialer

	// DialTimeout bounds a single uplink dial. Default 5s.
	DialTimeout time.Duration

	// InboxSize bounds the number of queued events. Default 1024.
	InboxSize int

	// Now stamps accepted samples. Default time.Now.
	Now func() time.Time

	Logger  *zap.Logger
	Metrics *metrics.Shard
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 1024
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

type client struct {
	conn     wsconn.Conn
	user     string
	channels map[string]struct{}
}

func (c *client) subscribed(tag string) bool {
	_, ok := c.channels[tag]
	return ok
}

// Shard serves the clients of one bucket. It buffers their samples between
// hub ticks, reports their presence, and fans hub broadcasts back out to
// them by channel.
//
// A Shard is an actor: Run owns every field below inbox, and Accept, the
// uplink reader and the dial goroutine only post events.
type Shard struct {
	opts  Options
	name  string
	log   *zap.Logger
	inbox chan event
	done  chan struct{}

	runCtx  context.Context
	clients map[string]*client
	uplink  wsconn.Conn
	dialing bool
	pending *buffer.Positions
}

// New creates a shard. Call Run to start it.
func New(opts Options) *Shard {
	opts = opts.withDefaults()
	name := cluster.ShardName(opts.ID)
	return &Shard{
		opts:    opts,
		name:    name,
		log:     opts.Logger.With(zap.String("shard", name)),
		inbox:   make(chan event, opts.InboxSize),
		done:    make(chan struct{}),
		clients: make(map[string]*client),
		pending: buffer.NewPositions(),
	}
}

// ID returns the bucket this shard serves.
func (s *Shard) ID() int { return s.opts.ID }

// Done is closed once Run has returned.
func (s *Shard) Done() <-chan struct{} { return s.done }

// Run processes events until ctx is canceled, then closes every client and
// the uplink.
func (s *Shard) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case ev := <-s.inbox:
			s.handle(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

// Accept attaches a client and reads its frames until the connection closes.
// It blocks for the lifetime of the client and closes conn on return.
func (s *Shard) Accept(ctx context.Context, conn wsconn.Conn, meta Meta) error {
	if !s.post(ctx, clientJoined{conn: conn, meta: meta}) {
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStopped
	}
	defer func() {
		_ = conn.Close()
		s.post(context.Background(), clientLeft{connID: conn.ID()})
	}()

	for {
		data, err := conn.Receive()
		if err != nil {
			return nil
		}
		if !s.post(context.Background(), clientFrame{connID: conn.ID(), data: data}) {
			return ErrStopped
		}
	}
}

// Info reports the shard's current state.
func (s *Shard) Info(ctx context.Context) (cluster.ShardInfo, error) {
	reply := make(chan cluster.ShardInfo, 1)
	if !s.post(ctx, infoRequest{reply: reply}) {
		if ctx.Err() != nil {
			return cluster.ShardInfo{}, ctx.Err()
		}
		return cluster.ShardInfo{}, ErrStopped
	}
	select {
	case info := <-reply:
		return info, nil
	case <-ctx.Done():
		return cluster.ShardInfo{}, ctx.Err()
	case <-s.done:
		return cluster.ShardInfo{}, ErrStopped
	}
}

func (s *Shard) post(ctx context.Context, ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Shard) handle(ev event) {
	switch e := ev.(type) {
	case clientJoined:
		s.onClientConnect(e)
	case clientFrame:
		s.onClientMessage(e)
	case clientLeft:
		s.onClientDisconnect(e)
	case uplinkReady:
		s.onUplinkReady(e)
	case uplinkFailed:
		s.onUplinkFailed(e)
	case uplinkFrame:
		s.onUplinkFrame(e)
	case uplinkLost:
		s.onUplinkLost(e)
	case infoRequest:
		e.reply <- s.info()
	}
}

func (s *Shard) onClientConnect(e clientJoined) {
	channels := make(map[string]struct{}, len(e.meta.Channels))
	for _, ch := range e.meta.Channels {
		channels[ch] = struct{}{}
	}
	s.clients[e.conn.ID()] = &client{
		conn:     e.conn,
		user:     e.meta.User,
		channels: channels,
	}
	s.opts.Metrics.SetClients(s.name, len(s.clients))
	s.log.Debug("client connected",
		zap.String("conn", e.conn.ID()),
		zap.String("user", e.meta.User),
		zap.Strings("channels", e.meta.Channels))

	s.ensureHubUplink()
	s.pushPresence()
}

func (s *Shard) onClientMessage(e clientFrame) {
	c, ok := s.clients[e.connID]
	if !ok {
		return
	}
	m, err := wire.ParseMotion(e.data)
	switch {
	case err != nil:
		s.opts.Metrics.Sample(s.name, metrics.SampleInvalid)
		s.log.Debug("dropping client frame", zap.String("conn", e.connID), zap.Error(err))
	case c.user == "":
		s.opts.Metrics.Sample(s.name, metrics.SampleAnonymous)
	default:
		s.pending.Put(wire.PositionSample{
			User:      c.user,
			Timestamp: s.opts.Now().UnixMilli(),
			Motion:    m,
		})
		s.opts.Metrics.Sample(s.name, metrics.SampleAccepted)
	}
	s.ensureHubUplink()
}

func (s *Shard) onClientDisconnect(e clientLeft) {
	if _, ok := s.clients[e.connID]; !ok {
		return
	}
	delete(s.clients, e.connID)
	s.opts.Metrics.SetClients(s.name, len(s.clients))
	s.log.Debug("client disconnected", zap.String("conn", e.connID), zap.Int("clients", len(s.clients)))

	if len(s.clients) == 0 {
		s.closeUplink()
		s.pending.Reset()
		return
	}
	s.pushPresence()
}

// ensureHubUplink starts a dial when clients exist and neither an uplink nor
// a dial is in flight. Failure is not retried here; the next client event
// calls back in.
func (s *Shard) ensureHubUplink() {
	if s.uplink != nil || s.dialing || len(s.clients) == 0 {
		return
	}
	s.dialing = true
	go func() {
		ctx, cancel := context.WithTimeout(s.runCtx, s.opts.DialTimeout)
		defer cancel()
		conn, err := s.opts.Dialer.DialHub(ctx, s.opts.ID)
		if err != nil {
			s.post(s.runCtx, uplinkFailed{err: err})
			return
		}
		if !s.post(s.runCtx, uplinkReady{conn: conn}) {
			_ = conn.Close()
		}
	}()
}

func (s *Shard) onUplinkReady(e uplinkReady) {
	s.dialing = false
	if len(s.clients) == 0 || s.uplink != nil {
		_ = e.conn.Close()
		return
	}
	s.uplink = e.conn
	s.opts.Metrics.Uplink(s.name, "opened")
	s.log.Info("hub uplink open", zap.String("conn", e.conn.ID()))

	go func(conn wsconn.Conn) {
		for {
			data, err := conn.Receive()
			if err != nil {
				s.post(context.Background(), uplinkLost{conn: conn})
				return
			}
			if !s.post(context.Background(), uplinkFrame{conn: conn, data: data}) {
				return
			}
		}
	}(e.conn)

	s.pushPresence()
}

func (s *Shard) onUplinkFailed(e uplinkFailed) {
	s.dialing = false
	s.opts.Metrics.Uplink(s.name, "failed")
	s.log.Warn("hub uplink dial failed", zap.Error(e.err))
}

func (s *Shard) onUplinkLost(e uplinkLost) {
	if s.uplink != e.conn {
		return
	}
	s.uplink = nil
	s.opts.Metrics.Uplink(s.name, "lost")
	s.log.Info("hub uplink lost", zap.String("conn", e.conn.ID()))
}

func (s *Shard) onUplinkFrame(e uplinkFrame) {
	if s.uplink != e.conn {
		return
	}
	msg, err := wire.Decode(e.data)
	if err != nil {
		s.log.Debug("dropping hub frame", zap.Error(err))
		return
	}
	if msg.Kind == wire.KindTick {
		s.flush()
		return
	}
	tag := msg.Tag()
	for _, c := range s.clients {
		if !c.subscribed(tag) {
			continue
		}
		if err := c.conn.Send(e.data); err != nil {
			s.opts.Metrics.SendFailed(s.name, "client")
			s.log.Debug("send to client failed", zap.String("conn", c.conn.ID()), zap.Error(err))
		}
	}
}

// flush sends everything pending as one positions batch.
func (s *Shard) flush() {
	samples := s.pending.Drain()
	if len(samples) == 0 {
		return
	}
	data, err := wire.EncodePositions(samples)
	if err != nil {
		s.log.Error("encode positions", zap.Error(err))
		return
	}
	s.opts.Metrics.Flush(s.name)
	s.sendUplink(data)
}

func (s *Shard) pushPresence() {
	if s.uplink == nil {
		return
	}
	data, err := wire.EncodePresence(s.presence())
	if err != nil {
		s.log.Error("encode presence", zap.Error(err))
		return
	}
	s.sendUplink(data)
}

func (s *Shard) sendUplink(data []byte) {
	if err := s.uplink.Send(data); err != nil {
		s.opts.Metrics.SendFailed(s.name, "hub")
		s.log.Debug("send to hub failed", zap.Error(err))
	}
}

// presence lists authenticated users, sorted, one entry per user.
func (s *Shard) presence() []string {
	out := make([]string, 0, len(s.clients))
	for _, c := range s.clients {
		if c.user != "" {
			out = append(out, c.user)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *Shard) closeUplink() {
	if s.uplink == nil {
		return
	}
	_ = s.uplink.Close()
	s.log.Info("hub uplink closed", zap.String("conn", s.uplink.ID()))
	s.uplink = nil
}

func (s *Shard) info() cluster.ShardInfo {
	st := s.pending.Stats()
	return cluster.ShardInfo{
		ID:            s.opts.ID,
		Clients:       len(s.clients),
		Authenticated: len(s.presence()),
		Uplink:        s.uplink != nil,
		Pending:       st.Users,
		Flushes:       st.Drains,
		Superseded:    st.Dropped,
		Locality:      s.opts.Locality,
	}
}

func (s *Shard) shutdown() {
	for id, c := range s.clients {
		_ = c.conn.Close()
		delete(s.clients, id)
	}
	s.closeUplink()
	s.pending.Reset()
	s.opts.Metrics.SetClients(s.name, 0)
}
