// Package edge is the public entry point of the relay.
//
// A client connects with
//
//	GET /ws?session=<json>&channels=positions&channels=presence
//
// The router checks for a websocket upgrade, verifies the optional session,
// validates the channels, picks a shard (hash of the user address, or a
// random bucket for anonymous observers), asks the backend to ensure that
// shard exists, and forwards the upgrade to it. Every rejection happens
// before the upgrade, so a refused client never holds a socket.
//
// LocalBackend hands the connection to a shard.Host in the same process.
// RemoteBackend provisions through the hub host's /shards/ensure endpoint,
// opens the shard session over a websocket and splices it to the client.
package edge
