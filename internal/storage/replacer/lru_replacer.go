// Package replacer implements the buffer pool's victim-selection
// structure: an LRU replacer that only tracks frames once they become
// evictable, not every access. See LRUReplacer for the exact contract.
package replacer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUReplacer holds the set of unpinned, evictable frame ids, ordered from
// least-recently-inserted (front, the next victim) to most-recently-inserted
// (back). This is not a classical access-order LRU: Insert is only called
// when a frame's pin count drops to zero, and a frame leaves either through
// Erase, when it is re-pinned or deleted, or through Victim, when it is
// chosen for eviction. It keeps the buffer pool's
// hot path (FetchPage on a hit) free of per-access replacer bookkeeping.
//
// Built on hashicorp/golang-lru's Cache, the same BusTub-replacer-over-a-
// third-party-LRU-cache lineage as other_examples/bsnyl5-bustubgo's
// replacer (Victim/Pin/Unpin/Size mapped onto RemoveOldest/Remove/
// ContainsOrAdd/Len there); this module uses the generic v2 Cache so the
// mapping is Victim/Erase/Insert/Size onto RemoveOldest/Remove/Add/Len
// without an interface{} cast at every call site. Capacity is set to the
// buffer pool's frame count, which bounds the number of distinct frame
// ids this replacer will ever be asked to hold, so the cache's own
// capacity-triggered eviction never fires in practice.
type LRUReplacer[T comparable] struct {
	cache *lru.Cache[T, struct{}]
}

// New creates an empty LRU replacer sized for capacity distinct
// candidates.
func New[T comparable](capacity int) *LRUReplacer[T] {
	c, err := lru.New[T, struct{}](capacity)
	if err != nil {
		panic(err)
	}
	return &LRUReplacer[T]{cache: c}
}

// Insert adds v as the most-recently-inserted candidate. If v is already
// present it is moved to the most-recent position instead of duplicated.
func (r *LRUReplacer[T]) Insert(v T) {
	r.cache.Add(v, struct{}{})
}

// Victim removes and returns the oldest-inserted candidate. It returns
// false if the replacer is empty.
func (r *LRUReplacer[T]) Victim() (T, bool) {
	v, _, ok := r.cache.RemoveOldest()
	return v, ok
}

// Erase removes v from the replacer if present, returning whether it was
// found. Erasing an absent value is not an error — callers erase
// unconditionally on a pin, whether or not the frame was ever unpinned.
func (r *LRUReplacer[T]) Erase(v T) bool {
	return r.cache.Remove(v)
}

// Size returns the number of candidates currently tracked.
func (r *LRUReplacer[T]) Size() int {
	return r.cache.Len()
}
