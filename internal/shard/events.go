package shard

import (
	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/wsconn"
)

type event interface{}

type clientJoined struct {
	conn wsconn.Conn
	meta Meta
}

type clientFrame struct {
	connID string
	data   []byte
}

type clientLeft struct {
	connID string
}

type uplinkReady struct {
	conn wsconn.Conn
}

type uplinkFailed struct {
	err error
}

// uplinkFrame and uplinkLost carry the link they came from so that events
// from a replaced uplink are recognized and ignored.
type uplinkFrame struct {
	conn wsconn.Conn
	data []byte
}

type uplinkLost struct {
	conn wsconn.Conn
}

type infoRequest struct {
	reply chan<- cluster.ShardInfo
}
