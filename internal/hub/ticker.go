package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker runs fire on a fixed interval in its own goroutine until stopped.
// The hub uses one Ticker for the position loop and one for the presence
// loop; fire only posts an event to the hub inbox, so a tick never touches
// hub state directly.
//
// Start and Stop are called from the hub goroutine only.
type Ticker struct {
	name     string
	interval time.Duration
	fire     func(ctx context.Context)
	log      *zap.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewTicker creates a stopped ticker.
//
// Parameters:
//   - name: Loop name for logs ("positions", "presence")
//   - interval: Period between calls to fire
//   - fire: Called on every tick with the loop's context, which is canceled by Stop
//
// Example:
//
//	t := NewTicker("presence", time.Second, func(ctx context.Context) {
//	    hub.post(ctx, tickPresence{})
//	}, log)
//	t.Start(ctx)
//	defer t.Stop()
func NewTicker(name string, interval time.Duration, fire func(ctx context.Context), log *zap.Logger) *Ticker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ticker{
		name:     name,
		interval: interval,
		fire:     fire,
		log:      log,
	}
}

// Start launches the loop. Starting a running ticker is a no-op.
func (t *Ticker) Start(parent context.Context) {
	if t.running {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.running = true

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				t.fire(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	t.log.Info("loop started", zap.String("loop", t.name), zap.Duration("interval", t.interval))
}

// Stop cancels the loop and waits for its goroutine to exit.
// Stopping a stopped ticker is a no-op.
func (t *Ticker) Stop() {
	if !t.running {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.running = false
	t.log.Info("loop stopped", zap.String("loop", t.name))
}

// Running reports whether the loop is active.
func (t *Ticker) Running() bool {
	return t.running
}
