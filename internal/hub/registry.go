package hub

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/relay/internal/wsconn"
)

// Registration is the hub's view of one live shard uplink: the link itself,
// the shard it speaks for and the last presence list that shard reported.
//
// Registrations are keyed by the link's connection id, not by shard id, so a
// shard that reconnects before its old link is reaped briefly holds two
// registrations and neither clobbers the other.
type Registration struct {
	// Conn is the uplink. The hub only ever calls Send on it.
	Conn wsconn.Conn

	// ShardID is the bucket the shard dialed in for.
	ShardID int

	// Presence is the shard's most recent authenticated address list.
	// Replaced wholesale on every presence message.
	Presence []string

	// ConnectedAt is when the hub accepted the uplink.
	ConnectedAt time.Time
}

// Registry tracks live shard uplinks and their presence lists.
//
// Concurrency Model:
//   - Owned by the hub goroutine; no locking
//   - Snapshots returned to callers are copies
//
// Example:
//
//	reg := NewRegistry()
//	reg.Add(conn, 3)
//	reg.SetPresence(conn.ID(), []string{"0xaa"})
//	union := reg.PresenceUnion() // ["0xaa"]
type Registry struct {
	// byConn maps connection id to registration.
	byConn map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]*Registration)}
}

// Add registers conn as the uplink for shardID.
// Adding an already registered connection id replaces the earlier entry.
//
// Returns:
//   - *Registration: The new entry
func (r *Registry) Add(conn wsconn.Conn, shardID int) *Registration {
	reg := &Registration{
		Conn:        conn,
		ShardID:     shardID,
		ConnectedAt: time.Now(),
	}
	r.byConn[conn.ID()] = reg
	return reg
}

// Remove drops the registration for connID.
//
// Returns:
//   - *Registration: The removed entry, or nil if connID was not registered
func (r *Registry) Remove(connID string) *Registration {
	reg, ok := r.byConn[connID]
	if !ok {
		return nil
	}
	delete(r.byConn, connID)
	return reg
}

// Link describes one registration for introspection.
type Link struct {
	Conn        string    `json:"conn"`
	Shard       int       `json:"shard"`
	Presence    int       `json:"presence"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Links describes every registration, ordered by shard and then by
// connection time.
func (r *Registry) Links() []Link {
	out := make([]Link, 0, len(r.byConn))
	for id, reg := range r.byConn {
		out = append(out, Link{
			Conn:        id,
			Shard:       reg.ShardID,
			Presence:    len(reg.Presence),
			ConnectedAt: reg.ConnectedAt,
		})
	}
	slices.SortFunc(out, func(a, b Link) int {
		if a.Shard != b.Shard {
			return a.Shard - b.Shard
		}
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return out
}

// SetPresence replaces the presence list reported over connID.
// Unknown connection ids are ignored.
//
// Returns:
//   - bool: true if the registration exists
func (r *Registry) SetPresence(connID string, addrs []string) bool {
	reg, ok := r.byConn[connID]
	if !ok {
		return false
	}
	reg.Presence = append([]string(nil), addrs...)
	return true
}

// Len returns the number of live uplinks.
func (r *Registry) Len() int {
	return len(r.byConn)
}

// Conns returns every registered uplink.
func (r *Registry) Conns() []wsconn.Conn {
	out := make([]wsconn.Conn, 0, len(r.byConn))
	for _, reg := range r.byConn {
		out = append(out, reg.Conn)
	}
	return out
}

// Shards returns the ids of connected shards, sorted and deduplicated.
func (r *Registry) Shards() []int {
	out := make([]int, 0, len(r.byConn))
	for _, reg := range r.byConn {
		out = append(out, reg.ShardID)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// PresenceUnion returns the deduplicated union of every registration's
// presence list, sorted. The result is never nil.
//
// Implementation:
//  1. Concatenate all lists
//  2. Sort
//  3. Compact adjacent duplicates
func (r *Registry) PresenceUnion() []string {
	n := 0
	for _, reg := range r.byConn {
		n += len(reg.Presence)
	}
	out := make([]string, 0, n)
	for _, reg := range r.byConn {
		out = append(out, reg.Presence...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// CloseAll closes every uplink and empties the registry.
func (r *Registry) CloseAll() {
	for id, reg := range r.byConn {
		_ = reg.Conn.Close()
		delete(r.byConn, id)
	}
}
