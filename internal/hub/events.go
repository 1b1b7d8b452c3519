package hub

import "github.com/dreamware/relay/internal/wsconn"

// event is anything delivered to the hub inbox.
type event interface{}

type shardConnected struct {
	conn    wsconn.Conn
	shardID int
}

type shardMessage struct {
	connID string
	data   []byte
}

type shardDisconnected struct {
	connID string
}

type tickPositions struct{}

type drainPositions struct{}

type tickPresence struct{}

type snapshotRequest struct {
	reply chan<- Snapshot
}
