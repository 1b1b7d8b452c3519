package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardForStable(t *testing.T) {
	addr := "0x52908400098527886e0f7030069857d2e4169ee7"
	first := ShardFor(addr, 8, "")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ShardFor(addr, 8, ""))
	}
}

func TestShardForRange(t *testing.T) {
	for _, count := range []int{1, 2, 7, 8, 64} {
		for i := 0; i < 200; i++ {
			got := ShardFor(fmt.Sprintf("0x%040x", i), count, "")
			assert.GreaterOrEqual(t, got, 0)
			assert.Less(t, got, count)
		}
	}
}

func TestShardForNonPositiveCount(t *testing.T) {
	assert.Equal(t, 0, ShardFor("0xAA", 0, ""))
	assert.Equal(t, 0, ShardFor("0xAA", -3, ""))
	assert.Equal(t, 0, RandomShard(0))
}

// TestShardForSpread checks that keys land in every bucket.
func TestShardForSpread(t *testing.T) {
	const count = 8
	seen := make(map[int]int)
	for i := 0; i < 1000; i++ {
		seen[ShardFor(fmt.Sprintf("0x%040x", i), count, "")]++
	}
	assert.Len(t, seen, count)
}

func TestShardForSeedChangesMapping(t *testing.T) {
	moved := 0
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("user-%d", i)
		if ShardFor(key, 64, "") != ShardFor(key, 64, "v2") {
			moved++
		}
	}
	assert.Greater(t, moved, 0)
}

func TestRandomShardRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		got := RandomShard(5)
		assert.GreaterOrEqual(t, got, 0)
		assert.Less(t, got, 5)
	}
}

func TestShardName(t *testing.T) {
	assert.Equal(t, "shard-3", ShardName(3))
}
