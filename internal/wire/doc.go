// Package wire defines the JSON text frames exchanged between clients, Shards
// and the Hub.
//
// Frames:
//
//	Client -> Shard   [[x,y,z],[yaw,pitch],[vx,vy,vz]]
//	Shard  -> Hub     {"t":"positions","d":[{"u":addr,"t":ms,"d":motion}, ...]}
//	                  {"t":"presence","d":[addr, ...]}
//	Hub    -> Shard   "tickPositions" | positions | presence
//	Shard  -> Client  positions | presence, filtered by channel
//
// Client frames are validated strictly by ParseMotion; anything that does not
// match the triple shape is rejected and the caller drops it. Batches decoded
// with Decode tolerate individual bad entries.
package wire
