package cluster

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// ShardFor maps key onto one of count buckets. The mapping is stable across
// processes and restarts for the same key, count and seed.
func ShardFor(key string, count int, seed string) int {
	if count <= 0 {
		return 0
	}
	h, _ := blake2b.New(8, nil)
	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}
	h.Write([]byte(key))
	v := binary.BigEndian.Uint64(h.Sum(nil))
	return int(v % uint64(count))
}

// RandomShard picks a bucket uniformly, for observers with no identity key.
func RandomShard(count int) int {
	if count <= 0 {
		return 0
	}
	return rand.IntN(count)
}

// ShardName is the display name of a shard id, used in logs and metric labels.
func ShardName(id int) string {
	return fmt.Sprintf("shard-%d", id)
}
