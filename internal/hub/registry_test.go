package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relay/internal/wsconn"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	a, _ := wsconn.Pipe(1)
	b, _ := wsconn.Pipe(1)

	r.Add(a, 2)
	r.Add(b, 2)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{2}, r.Shards())

	reg := r.Remove(a.ID())
	require.NotNil(t, reg)
	assert.Equal(t, 2, reg.ShardID)
	assert.Nil(t, r.Remove(a.ID()))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryPresenceUnion(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		want  []string
	}{
		{"no shards", nil, []string{}},
		{"empty lists", [][]string{{}, {}}, []string{}},
		{"single", [][]string{{"0xbb", "0xaa"}}, []string{"0xaa", "0xbb"}},
		{"overlap", [][]string{{"0xaa", "0xbb"}, {"0xbb", "0xcc"}}, []string{"0xaa", "0xbb", "0xcc"}},
		{"duplicates within a list", [][]string{{"0xaa", "0xaa"}}, []string{"0xaa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for i, list := range tt.lists {
				c, _ := wsconn.Pipe(1)
				r.Add(c, i)
				require.True(t, r.SetPresence(c.ID(), list))
			}
			assert.Equal(t, tt.want, r.PresenceUnion())
		})
	}
}

func TestRegistrySetPresenceUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.SetPresence("nope", []string{"0xaa"}))
}

func TestRegistrySetPresenceCopies(t *testing.T) {
	r := NewRegistry()
	c, _ := wsconn.Pipe(1)
	r.Add(c, 0)
	list := []string{"0xaa"}
	r.SetPresence(c.ID(), list)
	list[0] = "0xzz"
	assert.Equal(t, []string{"0xaa"}, r.PresenceUnion())
}

func TestRegistryLinks(t *testing.T) {
	r := NewRegistry()
	a, _ := wsconn.Pipe(1)
	b, _ := wsconn.Pipe(1)
	r.Add(b, 4)
	r.Add(a, 1)
	r.SetPresence(b.ID(), []string{"0xaa", "0xbb"})

	links := r.Links()
	require.Len(t, links, 2)
	assert.Equal(t, 1, links[0].Shard)
	assert.Equal(t, a.ID(), links[0].Conn)
	assert.Equal(t, 0, links[0].Presence)
	assert.Equal(t, 4, links[1].Shard)
	assert.Equal(t, 2, links[1].Presence)
	assert.False(t, links[1].ConnectedAt.IsZero())
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a, peer := wsconn.Pipe(1)
	r.Add(a, 0)
	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	select {
	case <-peer.Done():
	default:
		t.Fatal("expected link closed")
	}
}
