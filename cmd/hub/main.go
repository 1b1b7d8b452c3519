// Command hub runs the hub host: the global hub actor plus the shards the
// edges provision on it.
//
// Endpoints:
//
//	GET  /health                 liveness
//	GET  /metrics                Prometheus
//	GET  /hub                    hub snapshot
//	GET  /hub/connect?shard=N    shard uplinks (websocket)
//	GET  /shards                 hosted shards
//	POST /shards/ensure          shard provisioning (internal)
//	GET  /shard/{id}/connect     forwarded client sessions (internal)
//
// The internal endpoints trust the user the edge forwards, so the hub refuses
// to start without a shared internal_token. Configuration is read from an
// optional file and RELAY_* environment variables, e.g.
//
//	RELAY_HUB_LISTEN_ADDR=:8081 RELAY_INTERNAL_TOKEN=s3cret ./hub
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

	"github.com/dreamware/relay/internal/config"
	"github.com/dreamware/relay/internal/hub"
	"github.com/dreamware/relay/internal/hubhost"
	"github.com/dreamware/relay/internal/logging"
)

// ErrNoToken is returned when the hub is configured without internal_token.
var ErrNoToken = errors.New("internal_token is required: set RELAY_INTERNAL_TOKEN to the secret shared with the edges")

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

	if cfg.InternalToken == "" {
		logger.Fatal("refusing to start", zap.Error(ErrNoToken))
	}
	ln, err := net.Listen("tcp", cfg.Hub.ListenAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.Hub.ListenAddr), zap.Error(err))
	}
	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Fatal("hub exited with error", zap.Error(err))
	}
}

// run serves the hub host on ln until ctx is canceled, then drains HTTP
// connections for at most cfg.ShutdownGracePeriod and stops the actors.
func run(ctx context.Context, cfg config.Config, log *zap.Logger, ln net.Listener) error {
	if cfg.InternalToken == "" {
		return ErrNoToken
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	host := hubhost.New(ctx, hubhost.Options{
		Hub: hub.Options{
			TickHz:           cfg.Hub.TickHz,
			Grace:            cfg.Hub.Grace,
			PresenceInterval: cfg.Hub.PresenceInterval,
		},
		Region:   cfg.Hub.Region,
		Token:    cfg.InternalToken,
		Registry: reg,
		Logger:   log,
	})
	defer host.Close()

	srv := &http.Server{
		Handler:           host.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("hub listening",
			zap.String("addr", ln.Addr().String()),
			zap.Int("tick_hz", cfg.Hub.TickHz))
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
	log.Info("hub stopped")
	return nil
}
