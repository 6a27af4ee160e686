// Package dedup tracks recently observed message ids so repeated
// deliveries can be dropped. Entries expire after a TTL and the set is
// size-capped; eviction removes expired entries first, then the oldest
// insertion. Everything is in memory and scoped to one session.
package dedup
