// Package cluster holds what the edge router and the hub host share: the
// identity-to-shard assignment, the shard provisioning messages and small
// JSON-over-HTTP helpers.
//
// # Shard assignment
//
// Authenticated users are placed by hashing their lowercase address with an
// 8-byte BLAKE2b digest and reducing it modulo the shard count:
//
//	ShardFor("0xabc...", 8, "") -> 5   (same result on every edge, every restart)
//
// Anonymous observers have no identity key and are placed with RandomShard,
// which spreads them uniformly. Changing the shard count or the seed remaps
// users; both are deployment constants.
//
// # Provisioning
//
// The edge asks the hub host to ensure a shard exists before forwarding a
// connection to it:
//
//	POST /shards/ensure {"shard":5,"locality":"eu-west"}
//	  -> {"shard":5,"created":true,"region":"eu-west"}
//
// Ensure is idempotent. Internal endpoints require the TokenHeader.
package cluster
