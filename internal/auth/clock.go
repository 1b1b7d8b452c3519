package auth

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dreamware/relay/internal/logging"
)

// Clock supplies the reference time for session expiry.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// SystemClock is the local wall clock.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (time.Time, error) {
	return time.Now(), nil
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(ctx context.Context) (time.Time, error)

func (f ClockFunc) Now(ctx context.Context) (time.Time, error) { return f(ctx) }

// HeaderSource is the part of an Ethereum client ChainClock needs.
// *ethclient.Client satisfies it.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainClock derives the current time from the latest block timestamp, so
// session expiry agrees with the chain the session was signed against.
// A fetched timestamp is reused for TTL, advanced by the local time elapsed
// since the fetch. Concurrent callers share one in-flight lookup, and the
// cache lock is never held across the RPC. When the RPC fails the local
// clock is used.
type ChainClock struct {
	src HeaderSource
	ttl time.Duration
	log *zap.Logger
	now func() time.Time

	fetch singleflight.Group

	mu        sync.Mutex
	blockTime time.Time
	fetchedAt time.Time
}

// NewChainClock wraps src. A zero ttl fetches on every call.
func NewChainClock(src HeaderSource, ttl time.Duration, log *zap.Logger) *ChainClock {
	return &ChainClock{
		src: src,
		ttl: ttl,
		log: logging.OrNop(log),
		now: time.Now,
	}
}

// DialChainClock connects to the JSON-RPC endpoint at url.
func DialChainClock(ctx context.Context, url string, ttl time.Duration, log *zap.Logger) (*ChainClock, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	return NewChainClock(client, ttl, log), nil
}

func (c *ChainClock) Now(ctx context.Context) (time.Time, error) {
	local := c.now()
	if t, ok := c.cached(local); ok {
		return t, nil
	}

	v, err, _ := c.fetch.Do("latest", func() (any, error) {
		header, err := c.src.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, err
		}
		blockTime := time.Unix(int64(header.Time), 0)
		c.mu.Lock()
		c.blockTime = blockTime
		c.fetchedAt = local
		c.mu.Unlock()
		return blockTime, nil
	})
	if err != nil {
		c.log.Warn("block timestamp lookup failed, using local clock", zap.Error(err))
		return local, nil
	}
	return v.(time.Time), nil
}

func (c *ChainClock) cached(local time.Time) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchedAt.IsZero() || local.Sub(c.fetchedAt) >= c.ttl {
		return time.Time{}, false
	}
	return c.blockTime.Add(local.Sub(c.fetchedAt)), true
}
