// Package shard implements the per-bucket actor that owns live client
// connections, and the Host that runs shards on demand.
//
// A shard keeps:
//
//	clients   conn id -> {user (empty for observers), channels}
//	uplink    at most one link to the hub, or none
//	pending   last-write-wins buffer of authenticated samples
//
// Clients send motion triples. Samples from authenticated users are stamped
// with the shard's clock and buffered until the hub's next tickPositions,
// at which point the buffer is flushed as one positions batch. Samples from
// anonymous observers are counted and dropped: a broadcast entry needs an
// identity.
//
// Every other hub frame is fanned out verbatim to the clients subscribed to
// its tag (positions or presence).
//
// # Uplink
//
// The uplink is opened lazily by the first client event and closed when the
// last client leaves. If it drops, nothing retries on a timer; the next
// client connect or frame dials again. Whenever the client set changes or a
// new uplink opens, the shard pushes its full presence list to the hub.
//
// The hub host runs its shards next to the hub and links them with
// LocalHub. RemoteHub dials the hub host's /hub/connect endpoint instead,
// for shards hosted in a separate process.
package shard
