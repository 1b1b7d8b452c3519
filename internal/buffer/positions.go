package buffer

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dreamware/relay/internal/wire"
)

// Stats summarizes a buffer.
type Stats struct {
	Users   int    `json:"users"`   // Samples currently pending, one per user
	Writes  uint64 `json:"writes"`  // Puts since creation
	Drains  uint64 `json:"drains"`  // Non-empty drains since creation
	Dropped uint64 `json:"dropped"` // Samples superseded before they were drained
}

// Positions holds at most one pending sample per user. A later Put for the
// same user replaces the earlier one.
//
// Positions is not safe for concurrent use; it belongs to exactly one actor.
type Positions struct {
	samples map[string]wire.PositionSample
	stats   Stats
}

// NewPositions creates an empty buffer.
func NewPositions() *Positions {
	return &Positions{
		samples: make(map[string]wire.PositionSample),
	}
}

// Put records s for its user, superseding any pending sample.
func (p *Positions) Put(s wire.PositionSample) {
	if s.User == "" {
		return
	}
	if _, exists := p.samples[s.User]; exists {
		p.stats.Dropped++
	}
	p.samples[s.User] = s
	p.stats.Writes++
}

// Merge applies Put to every sample in order.
func (p *Positions) Merge(samples []wire.PositionSample) {
	for _, s := range samples {
		p.Put(s)
	}
}

// Len returns the number of users with a pending sample.
func (p *Positions) Len() int {
	return len(p.samples)
}

// Drain returns every pending sample ordered by user and empties the buffer.
// It returns nil when nothing is pending.
func (p *Positions) Drain() []wire.PositionSample {
	if len(p.samples) == 0 {
		return nil
	}
	out := make([]wire.PositionSample, 0, len(p.samples))
	for _, s := range p.samples {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b wire.PositionSample) int {
		return strings.Compare(a.User, b.User)
	})
	p.samples = make(map[string]wire.PositionSample, len(out))
	p.stats.Drains++
	return out
}

// Reset discards everything pending.
func (p *Positions) Reset() {
	if len(p.samples) == 0 {
		return
	}
	p.stats.Dropped += uint64(len(p.samples))
	p.samples = make(map[string]wire.PositionSample)
}

// Stats returns a snapshot of the buffer's counters.
func (p *Positions) Stats() Stats {
	st := p.stats
	st.Users = len(p.samples)
	return st
}
