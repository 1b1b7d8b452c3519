package shard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/hub"
	"github.com/dreamware/relay/internal/wsconn"
)

// Dialer opens a shard's uplink to the hub.
type Dialer interface {
	DialHub(ctx context.Context, shardID int) (wsconn.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, shardID int) (wsconn.Conn, error)

func (f DialerFunc) DialHub(ctx context.Context, shardID int) (wsconn.Conn, error) {
	return f(ctx, shardID)
}

// LocalHub dials a hub running in the same process over an in-memory link.
func LocalHub(h *hub.Hub, queue int) Dialer {
	return DialerFunc(func(ctx context.Context, shardID int) (wsconn.Conn, error) {
		select {
		case <-h.Done():
			return nil, hub.ErrStopped
		default:
		}
		shardEnd, hubEnd := wsconn.Pipe(queue)
		go h.Accept(context.Background(), hubEnd, shardID)
		return shardEnd, nil
	})
}

// RemoteHub dials the hub's websocket endpoint at baseURL, e.g.
// "http://hub:8081". The shard id travels as the shard query parameter.
func RemoteHub(baseURL, token string, opts wsconn.Options) Dialer {
	base := HubConnectURL(baseURL)
	return DialerFunc(func(ctx context.Context, shardID int) (wsconn.Conn, error) {
		u := base + "?" + url.Values{"shard": {strconv.Itoa(shardID)}}.Encode()
		header := http.Header{}
		if token != "" {
			header.Set(cluster.TokenHeader, token)
		}
		conn, err := wsconn.Dial(ctx, u, header, opts)
		if err != nil {
			return nil, fmt.Errorf("dial hub for %s: %w", cluster.ShardName(shardID), err)
		}
		return conn, nil
	})
}

// HubConnectURL converts an http(s) base URL into the hub's websocket endpoint.
func HubConnectURL(baseURL string) string {
	return WebsocketURL(baseURL) + "/hub/connect"
}

// WebsocketURL rewrites an http(s) scheme to ws(s) and trims trailing slashes.
func WebsocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
