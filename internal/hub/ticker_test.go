package hub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerStartStop(t *testing.T) {
	var fired atomic.Int32
	tk := NewTicker("test", 5*time.Millisecond, func(context.Context) {
		fired.Add(1)
	}, nil)

	assert.False(t, tk.Running())
	tk.Start(context.Background())
	tk.Start(context.Background()) // no-op
	assert.True(t, tk.Running())

	require.Eventually(t, func() bool { return fired.Load() >= 3 }, time.Second, time.Millisecond)

	tk.Stop()
	assert.False(t, tk.Running())
	after := fired.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, fired.Load())

	tk.Stop() // no-op
}

// TestTickerStopUnblocksFire verifies Stop returns while fire is blocked
// waiting on the loop context.
func TestTickerStopUnblocksFire(t *testing.T) {
	entered := make(chan struct{}, 1)
	tk := NewTicker("blocking", time.Millisecond, func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
	}, nil)
	tk.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		tk.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
