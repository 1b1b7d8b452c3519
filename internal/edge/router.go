package edge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/auth"
	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/shard"
	"github.com/dreamware/relay/internal/wire"
)

var (
	// ErrNotUpgrade is returned for plain HTTP requests to the connect endpoint.
	ErrNotUpgrade = errors.New("websocket upgrade required")

	// ErrBadChannel is returned when a channels value is not a known channel.
	ErrBadChannel = errors.New("unknown channel")
)

// Query parameters of the connect endpoint.
const (
	ParamSession  = "session"
	ParamChannels = "channels"
)

// Backend provisions shards and hands upgraded connections to them.
type Backend interface {
	// Ensure makes sure the shard exists. It is idempotent.
	Ensure(ctx context.Context, shardID int, locality string) (cluster.EnsureShardResponse, error)

	// Forward upgrades the request and attaches it to the shard. It returns
	// once the client disconnects. If it fails before upgrading, nothing has
	// been written to w.
	Forward(w http.ResponseWriter, r *http.Request, shardID int, meta shard.Meta) error

	// Shards reports the shards the backend is running.
	Shards(ctx context.Context) (cluster.ShardList, error)
}

// ForwardError marks a Forward failure that happened before the upgrade.
type ForwardError struct {
	Err error
}

func (e *ForwardError) Error() string { return "forward: " + e.Err.Error() }
func (e *ForwardError) Unwrap() error { return e.Err }

// Options configures a Router.
type Options struct {
	ShardCount int
	HashSeed   string
	Locality   string

	// Verifier authenticates sessions. Nil selects a Verifier with the
	// system clock and self-custody authentication.
	Verifier *auth.Verifier

	Backend Backend
	Logger  *zap.Logger
	Metrics *metrics.Edge
}

// Target is where a connect request is sent.
type Target struct {
	Shard int
	Meta  shard.Meta
}

// Router is the public connect endpoint.
type Router struct {
	opts Options
	log  *zap.Logger
}

// NewRouter returns a Router. Options.Backend is required.
func NewRouter(opts Options) *Router {
	if opts.ShardCount <= 0 {
		opts.ShardCount = 8
	}
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.Verifier == nil {
		opts.Verifier = auth.NewVerifier(nil, nil, opts.Logger)
	}
	return &Router{opts: opts, log: opts.Logger.With(zap.String("component", "edge"))}
}

// Resolve validates a connect request and picks its shard. It performs no
// upgrade and creates no state.
func (rt *Router) Resolve(r *http.Request) (Target, error) {
	if !websocket.IsWebSocketUpgrade(r) {
		return Target{}, ErrNotUpgrade
	}
	q := r.URL.Query()

	var user string
	if raw := q.Get(ParamSession); raw != "" {
		u, err := rt.opts.Verifier.Verify(r.Context(), raw)
		if err != nil {
			return Target{}, err
		}
		user = u
	}

	channels := q[ParamChannels]
	for _, ch := range channels {
		if !wire.ValidChannel(ch) {
			return Target{}, fmt.Errorf("%w: %q", ErrBadChannel, ch)
		}
	}

	id := cluster.RandomShard(rt.opts.ShardCount)
	if user != "" {
		id = cluster.ShardFor(user, rt.opts.ShardCount, rt.opts.HashSeed)
	}
	return Target{
		Shard: id,
		Meta:  shard.Meta{User: user, Channels: append([]string(nil), channels...)},
	}, nil
}

// ServeHTTP authenticates, provisions the shard and forwards the upgrade.
//
// Status codes:
//   - 426: not a websocket upgrade
//   - 400: malformed session or unknown channel
//   - 500: session rejected; 503 when the authenticator is unreachable
//   - 502: shard provisioning or forwarding failed before the upgrade
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, err := rt.Resolve(r)
	if err != nil {
		rt.reject(w, err)
		return
	}

	start := time.Now()
	resp, err := rt.opts.Backend.Ensure(r.Context(), target.Shard, rt.opts.Locality)
	rt.opts.Metrics.ObserveProvision(time.Since(start))
	if err != nil {
		rt.opts.Metrics.Connect("provision_failed")
		rt.log.Warn("ensure shard failed", zap.Int("shard", target.Shard), zap.Error(err))
		http.Error(w, "shard unavailable", http.StatusBadGateway)
		return
	}

	log := rt.log.With(
		zap.String("shard", cluster.ShardName(target.Shard)),
		zap.String("user", target.Meta.User),
		zap.String("region", resp.Region))
	log.Debug("forwarding", zap.Bool("created", resp.Created), zap.Strings("channels", target.Meta.Channels))

	rt.opts.Metrics.Connect("accepted")
	if err := rt.opts.Backend.Forward(w, r, target.Shard, target.Meta); err != nil {
		var fe *ForwardError
		if errors.As(err, &fe) {
			rt.opts.Metrics.Connect("forward_failed")
			log.Warn("forward failed", zap.Error(err))
			http.Error(w, "shard unavailable", http.StatusBadGateway)
			return
		}
		log.Debug("session ended", zap.Error(err))
	}
}

func (rt *Router) reject(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch {
	case errors.Is(err, ErrNotUpgrade):
		rt.opts.Metrics.Connect("not_upgrade")
		w.Header().Set("Upgrade", "websocket")
	case errors.Is(err, auth.ErrAuth):
		rt.opts.Metrics.Connect("auth_failed")
		rt.opts.Metrics.AuthFailure(authReason(err))
		rt.log.Info("session rejected", zap.Error(err))
	default:
		rt.opts.Metrics.Connect("bad_request")
	}
	http.Error(w, err.Error(), status)
}

// StatusFor maps a Resolve error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotUpgrade):
		return http.StatusUpgradeRequired
	case errors.Is(err, ErrBadChannel), errors.Is(err, auth.ErrMalformedSession):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrFuture):
		return "future"
	case errors.Is(err, auth.ErrSignature):
		return "signature"
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auth.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
