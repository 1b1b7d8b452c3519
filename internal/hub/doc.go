// Package hub implements the global coordinator of the relay.
//
// Every shard holds at most one uplink to the hub. The hub merges the
// position samples shards flush into a single last-write-wins buffer and
// broadcasts the result back to all of them, and it periodically broadcasts
// the union of every shard's presence list.
//
// # Position loop
//
// At TickHz (default 20, clamped to [1, 60]) the hub runs a two-phase tick:
//
//	t0           broadcast "tickPositions"       shards flush pending samples
//	t0 + Grace   drain merged buffer             broadcast one positions batch
//
// An empty buffer produces no batch. A sample that reaches the hub after the
// drain simply rides the next tick.
//
// # Presence loop
//
// Every PresenceInterval (default 1s) the hub broadcasts the sorted,
// deduplicated union of the latest presence list from each uplink.
//
// # Lifecycle
//
// Both loops start when the first uplink registers and stop when the last one
// goes away. Every send is fire-and-forget: a failed or full uplink is
// counted and skipped, never retried, and never allowed to delay the others.
//
// # Concurrency
//
// The Hub is an actor. Run owns all state and processes one event at a time
// from a bounded inbox. Accept runs on the socket's goroutine and only posts
// events, and the loop tickers do the same.
package hub
