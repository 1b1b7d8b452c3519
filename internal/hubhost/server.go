// Package hubhost serves the HTTP surface of the hub host process: the hub's
// uplink endpoint, shard provisioning, and forwarded client sessions for the
// shards it runs.
//
// Shards started through /shards/ensure live in this process and reach the
// hub over in-memory links. /hub/connect accepts uplinks from shards hosted
// in other processes, which dial it with shard.RemoteHub.
//
// The internal endpoints carry users and channels the edge has already
// verified, so they only answer requests bearing the shared token. A server
// without a token refuses them all.
package hubhost

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/hub"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/shard"
	"github.com/dreamware/relay/internal/wire"
	"github.com/dreamware/relay/internal/wsconn"
)

// Server exposes a hub and the shard host co-located with it.
type Server struct {
	Hub  *hub.Hub
	Host *shard.Host

	// Token must be presented in cluster.TokenHeader on every internal
	// endpoint. When empty the internal endpoints are closed.
	Token string

	Conn     wsconn.Options
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	upgrader websocket.Upgrader
	cancel   context.CancelFunc
}

// Options configures a hub host started by New.
type Options struct {
	Hub    hub.Options
	Region string
	Token  string
	Conn   wsconn.Options

	// Registry receives the hub and shard metrics and is served on /metrics.
	// Nil disables both.
	Registry *prometheus.Registry

	// UplinkQueue is the frame queue of each in-process shard uplink.
	UplinkQueue int

	Logger *zap.Logger
}

// New starts a hub and a shard host whose shards uplink to it in process.
// Both run until ctx is canceled or Close is called.
func New(ctx context.Context, opts Options) *Server {
	ctx, cancel := context.WithCancel(ctx)
	log := logging.OrNop(opts.Logger)
	if opts.UplinkQueue <= 0 {
		opts.UplinkQueue = 256
	}

	hubOpts := opts.Hub
	hubOpts.Logger = log
	var shardMetrics *metrics.Shard
	var gatherer prometheus.Gatherer
	if opts.Registry != nil {
		hubOpts.Metrics = metrics.NewHub(opts.Registry)
		shardMetrics = metrics.NewShard(opts.Registry)
		gatherer = opts.Registry
	}

	h := hub.New(hubOpts)
	go func() { _ = h.Run(ctx) }()

	host := shard.NewHost(ctx, shard.HostOptions{
		Dialer:  shard.LocalHub(h, opts.UplinkQueue),
		Region:  opts.Region,
		Logger:  log,
		Metrics: shardMetrics,
	})

	return &Server{
		Hub:      h,
		Host:     host,
		Token:    opts.Token,
		Conn:     opts.Conn,
		Gatherer: gatherer,
		Logger:   log,
		cancel:   cancel,
	}
}

// Close stops the shards and the hub and waits for both.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Host.Close()
	<-s.Hub.Done()
}

// Handler returns the routed endpoints:
//
//	GET  /health                 liveness
//	GET  /metrics                Prometheus, when Gatherer is set
//	GET  /hub                    hub snapshot
//	GET  /hub/connect?shard=N    shard uplink (websocket)
//	GET  /shards                 state of every hosted shard
//	POST /shards/ensure          idempotent shard provisioning
//	GET  /shard/{id}/connect     forwarded client session (websocket)
func (s *Server) Handler() http.Handler {
	s.Logger = logging.OrNop(s.Logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /hub", s.handleHubSnapshot)
	mux.HandleFunc("GET /hub/connect", s.internal(s.handleHubConnect))
	mux.HandleFunc("GET /shards", s.handleShards)
	mux.HandleFunc("POST /shards/ensure", s.internal(s.handleEnsure))
	mux.HandleFunc("GET /shard/{id}/connect", s.internal(s.handleShardConnect))
	return mux
}

// internal rejects requests that do not carry the shared token.
func (s *Server) internal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(cluster.TokenHeader)
		if s.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.Token)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHubSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	snap, err := s.Hub.Snapshot(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleHubConnect(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("shard"))
	if err != nil || id < 0 {
		http.Error(w, "invalid shard", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Debug("hub upgrade failed", zap.Error(err))
		return
	}
	if err := s.Hub.Accept(context.Background(), wsconn.New(ws, s.Conn), id); err != nil {
		s.Logger.Debug("uplink ended", zap.Int("shard", id), zap.Error(err))
	}
}

func (s *Server) handleShards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.ShardList{
		Region: s.Host.Region(),
		Shards: s.Host.Infos(ctx),
	})
}

func (s *Server) handleEnsure(w http.ResponseWriter, r *http.Request) {
	var req cluster.EnsureShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Shard < 0 {
		http.Error(w, "invalid shard", http.StatusBadRequest)
		return
	}
	_, created := s.Host.Ensure(req.Shard, req.Locality)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.EnsureShardResponse{
		Shard:   req.Shard,
		Created: created,
		Region:  s.Host.Region(),
	})
}

// handleShardConnect attaches a client the edge has already authenticated.
// The user and channels arrive as query parameters and are trusted because
// the endpoint is internal.
func (s *Server) handleShardConnect(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid shard", http.StatusBadRequest)
		return
	}
	sh := s.Host.Get(id)
	if sh == nil {
		http.Error(w, "shard not provisioned", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	channels := q["channels"]
	for _, ch := range channels {
		if !wire.ValidChannel(ch) {
			http.Error(w, "unknown channel", http.StatusBadRequest)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Debug("shard upgrade failed", zap.Error(err))
		return
	}
	_ = sh.Accept(context.Background(), wsconn.New(ws, s.Conn), shard.Meta{
		User:     q.Get("user"),
		Channels: channels,
	})
}
