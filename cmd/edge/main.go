// Command edge runs the public connect endpoint. It authenticates each
// session, hashes the user to a shard, provisions that shard on the hub host
// and hands the socket over to it.
//
// With edge.hub_url unset the hub host runs inside this process and its /hub
// view is served alongside the public endpoints. Its internal endpoints are
// never exposed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/auth"
	"github.com/dreamware/relay/internal/config"
	"github.com/dreamware/relay/internal/edge"
	"github.com/dreamware/relay/internal/hub"
	"github.com/dreamware/relay/internal/hubhost"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Edge.ListenAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.Edge.ListenAddr), zap.Error(err))
	}
	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Fatal("edge exited with error", zap.Error(err))
	}
}

var errNoToken = errors.New("edge.hub_url is set but internal_token is empty; the hub host refuses untokened requests")

// newVerifier picks the session clock and delegation source from cfg.
func newVerifier(ctx context.Context, cfg config.Config, log *zap.Logger) (*auth.Verifier, error) {
	var clock auth.Clock = auth.SystemClock{}
	if cfg.Auth.RPCURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Auth.Timeout)
		defer cancel()
		cc, err := auth.DialChainClock(dialCtx, cfg.Auth.RPCURL, cfg.Auth.ClockCacheTTL, log)
		if err != nil {
			return nil, err
		}
		clock = cc
	}

	var authn auth.Authenticator = auth.SelfAuthenticator{}
	if cfg.Auth.DelegationURL != "" {
		authn = auth.HTTPAuthenticator{
			URL:     cfg.Auth.DelegationURL,
			Token:   cfg.InternalToken,
			Timeout: cfg.Auth.Timeout,
		}
	}
	return auth.NewVerifier(clock, authn, log), nil
}

// newHandler assembles the edge. In standalone mode it also starts the hub
// host; the returned func stops it.
func newHandler(ctx context.Context, cfg config.Config, log *zap.Logger, reg *prometheus.Registry) (http.Handler, func(), error) {
	verifier, err := newVerifier(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	var (
		backend edge.Backend
		local   *hubhost.Server
		stop    = func() {}
	)
	if cfg.Standalone() {
		local = hubhost.New(ctx, hubhost.Options{
			Hub: hub.Options{
				TickHz:           cfg.Hub.TickHz,
				Grace:            cfg.Hub.Grace,
				PresenceInterval: cfg.Hub.PresenceInterval,
			},
			Region:   cfg.Hub.Region,
			Registry: reg,
			Logger:   log,
		})
		stop = local.Close
		backend = &edge.LocalBackend{Host: local.Host, Upgrader: edge.NewUpgrader()}
	} else {
		if cfg.InternalToken == "" {
			return nil, nil, errNoToken
		}
		backend = &edge.RemoteBackend{
			BaseURL:  cfg.Edge.HubURL,
			Token:    cfg.InternalToken,
			Upgrader: edge.NewUpgrader(),
		}
	}

	rt := edge.NewRouter(edge.Options{
		ShardCount: cfg.Edge.ShardCount,
		HashSeed:   cfg.Edge.HashSeed,
		Locality:   cfg.Edge.Locality,
		Verifier:   verifier,
		Backend:    backend,
		Logger:     log,
		Metrics:    metrics.NewEdge(reg),
	})
	mux := edge.NewMux(rt, reg)
	if local != nil {
		mux.Handle("/hub", local.Handler())
	}
	return mux, stop, nil
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, ln net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, stop, err := newHandler(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer stop()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("edge listening",
			zap.String("addr", ln.Addr().String()),
			zap.Bool("standalone", cfg.Standalone()),
			zap.String("hub", cfg.Edge.HubURL),
			zap.Int("shards", cfg.Edge.ShardCount))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("edge stopped")
	return nil
}
