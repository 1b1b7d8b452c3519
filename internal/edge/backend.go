package edge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/shard"
	"github.com/dreamware/relay/internal/wsconn"
)

// NewUpgrader returns the websocket upgrader used for client connections.
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// LocalBackend serves shards hosted in this process.
type LocalBackend struct {
	Host     *shard.Host
	Upgrader websocket.Upgrader
	Conn     wsconn.Options
}

func (b *LocalBackend) Ensure(_ context.Context, shardID int, locality string) (cluster.EnsureShardResponse, error) {
	_, created := b.Host.Ensure(shardID, locality)
	return cluster.EnsureShardResponse{Shard: shardID, Created: created, Region: b.Host.Region()}, nil
}

func (b *LocalBackend) Forward(w http.ResponseWriter, r *http.Request, shardID int, meta shard.Meta) error {
	sh := b.Host.Get(shardID)
	if sh == nil {
		return &ForwardError{Err: fmt.Errorf("%s not running", cluster.ShardName(shardID))}
	}
	ws, err := b.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return err
	}
	return sh.Accept(context.Background(), wsconn.New(ws, b.Conn), meta)
}

func (b *LocalBackend) Shards(ctx context.Context) (cluster.ShardList, error) {
	return cluster.ShardList{Region: b.Host.Region(), Shards: b.Host.Infos(ctx)}, nil
}

// RemoteBackend reaches shards on a separate hub host over HTTP.
type RemoteBackend struct {
	// BaseURL is the hub host's http(s) address.
	BaseURL  string
	Token    string
	Upgrader websocket.Upgrader
	Conn     wsconn.Options
}

func (b *RemoteBackend) header() http.Header {
	h := http.Header{}
	if b.Token != "" {
		h.Set(cluster.TokenHeader, b.Token)
	}
	return h
}

func (b *RemoteBackend) Ensure(ctx context.Context, shardID int, locality string) (cluster.EnsureShardResponse, error) {
	var resp cluster.EnsureShardResponse
	err := cluster.PostJSON(ctx, b.BaseURL+"/shards/ensure", b.header(),
		cluster.EnsureShardRequest{Shard: shardID, Locality: locality}, &resp)
	if err != nil {
		return cluster.EnsureShardResponse{}, fmt.Errorf("ensure %s: %w", cluster.ShardName(shardID), err)
	}
	return resp, nil
}

func (b *RemoteBackend) Shards(ctx context.Context) (cluster.ShardList, error) {
	var list cluster.ShardList
	if err := cluster.GetJSON(ctx, b.BaseURL+"/shards", &list); err != nil {
		return cluster.ShardList{}, fmt.Errorf("list shards: %w", err)
	}
	return list, nil
}

// Forward opens the shard session first so a failure can still be reported
// to the client as an HTTP error, then upgrades and splices the two sockets.
func (b *RemoteBackend) Forward(w http.ResponseWriter, r *http.Request, shardID int, meta shard.Meta) error {
	upstream, err := wsconn.Dial(r.Context(), ShardConnectURL(b.BaseURL, shardID, meta), b.header(), b.Conn)
	if err != nil {
		return &ForwardError{Err: err}
	}
	ws, err := b.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = upstream.Close()
		return err
	}
	wsconn.Splice(wsconn.New(ws, b.Conn), upstream)
	return nil
}

// ShardConnectURL builds the hub host's websocket URL for a forwarded client.
func ShardConnectURL(baseURL string, shardID int, meta shard.Meta) string {
	q := url.Values{}
	if meta.User != "" {
		q.Set("user", meta.User)
	}
	for _, ch := range meta.Channels {
		q.Add(ParamChannels, ch)
	}
	u := shard.WebsocketURL(baseURL) + "/shard/" + strconv.Itoa(shardID) + "/connect"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
