package buffer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relay/internal/wire"
)

func sample(user string, ts int64, x float64) wire.PositionSample {
	return wire.PositionSample{
		User:      user,
		Timestamp: ts,
		Motion:    wire.Motion{{x, 0, 0}, {0, 0}, {0, 0, 0}},
	}
}

// TestPutLastWriteWins verifies that two updates for one user leave only the latest.
func TestPutLastWriteWins(t *testing.T) {
	p := NewPositions()
	p.Put(sample("0xAA", 1, 1))
	p.Put(sample("0xAA", 2, 2))

	require.Equal(t, 1, p.Len())
	st := p.Stats()
	assert.Equal(t, uint64(2), st.Writes)
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, 1, st.Users)

	out := p.Drain()
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Timestamp)
	assert.Equal(t, 2.0, out[0].Motion[0][0])
}

func TestPutIgnoresAnonymous(t *testing.T) {
	p := NewPositions()
	p.Put(sample("", 1, 1))
	assert.Equal(t, 0, p.Len())
}

func TestDrain(t *testing.T) {
	p := NewPositions()
	assert.Nil(t, p.Drain(), "empty buffer drains to nil")

	p.Put(sample("0xCC", 3, 3))
	p.Put(sample("0xAA", 1, 1))
	p.Put(sample("0xBB", 2, 2))

	out := p.Drain()
	require.Len(t, out, 3)
	assert.Equal(t, "0xAA", out[0].User)
	assert.Equal(t, "0xBB", out[1].User)
	assert.Equal(t, "0xCC", out[2].User)
	assert.Equal(t, 0, p.Len())
	assert.Nil(t, p.Drain())
	assert.Equal(t, uint64(1), p.Stats().Drains)
}

func TestMergeAcrossSources(t *testing.T) {
	p := NewPositions()
	p.Merge([]wire.PositionSample{sample("0xAA", 1, 1), sample("0xBB", 1, 1)})
	p.Merge([]wire.PositionSample{sample("0xAA", 5, 9)})

	out := p.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, int64(5), out[0].Timestamp)
}

func TestReset(t *testing.T) {
	p := NewPositions()
	for i := 0; i < 10; i++ {
		p.Put(sample(fmt.Sprintf("0x%02d", i), int64(i), 0))
	}
	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, uint64(10), p.Stats().Dropped)
}

// TestBoundedByUsers verifies that the buffer never grows beyond the user count.
func TestBoundedByUsers(t *testing.T) {
	p := NewPositions()
	users := []string{"0xAA", "0xBB", "0xCC"}
	for i := 0; i < 1000; i++ {
		p.Put(sample(users[i%len(users)], int64(i), float64(i)))
	}
	assert.Equal(t, len(users), p.Len())
}
