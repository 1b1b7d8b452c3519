// Package buffer implements the last-write-wins position buffers used by both
// sides of the aggregation pipeline.
//
// A Shard keeps one buffer of its clients' samples between Hub ticks; the Hub
// keeps one buffer of samples merged from every Shard between drains. In both
// cases the buffer is bounded by the number of distinct users, because each
// user owns a single slot:
//
//	Put(0xAA, t=1)  ->  {0xAA: t=1}
//	Put(0xBB, t=2)  ->  {0xAA: t=1, 0xBB: t=2}
//	Put(0xAA, t=3)  ->  {0xAA: t=3, 0xBB: t=2}   (t=1 superseded)
//	Drain()         ->  [0xAA t=3, 0xBB t=2], buffer empty
//
// Buffers are owned by a single actor goroutine and carry no locking.
package buffer
