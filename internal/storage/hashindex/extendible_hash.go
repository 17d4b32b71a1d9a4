// Package hashindex implements an extendible hash table: the structure
// the buffer pool manager uses as its page table (page id -> frame).
//
// Ported from the BusTub-style extendible_hash.cpp/.h this core is
// distilled from, generalized from a hard-coded page_id_t/Page* pair to a
// generic K/V map so the same implementation type-checks for the buffer
// pool's page table and for standalone use in tests.
package hashindex

import (
	"fmt"
	"sync"
)

// MaxDepth bounds global/local depth growth. A well-distributed hash never
// approaches it; it exists only to turn a pathological, never-separating
// key set into an error instead of an unbounded loop, per the "degenerate
// splits" guidance for this structure.
const MaxDepth = 32

// Hasher maps a key to its hash value. The low bits of the result are used
// for directory addressing, so callers should not pass a hash function
// whose low bits are low-entropy (e.g. a raw, evenly-strided integer key
// without any mixing).
type Hasher[K comparable] func(key K) uint64

type bucket[K comparable, V any] struct {
	id         uint64
	localDepth int
	items      map[K]V
}

func newBucket[K comparable, V any](id uint64, localDepth int) *bucket[K, V] {
	return &bucket[K, V]{id: id, localDepth: localDepth, items: make(map[K]V)}
}

// ExtendibleHash is a single-mutex, in-memory extendible hash table.
type ExtendibleHash[K comparable, V any] struct {
	mu             sync.Mutex
	hash           Hasher[K]
	bucketCapacity int
	globalDepth    int
	bucketCount    int
	pairCount      int
	directory      []*bucket[K, V]
}

// New creates an extendible hash table with one bucket at depth 0 and the
// given per-bucket key capacity before a split is triggered.
func New[K comparable, V any](bucketCapacity int, hash Hasher[K]) *ExtendibleHash[K, V] {
	eh := &ExtendibleHash[K, V]{
		hash:           hash,
		bucketCapacity: bucketCapacity,
		bucketCount:    1,
		directory:      make([]*bucket[K, V], 1),
	}
	eh.directory[0] = newBucket[K, V](0, 0)
	return eh
}

func (eh *ExtendibleHash[K, V]) index(h uint64) uint64 {
	return h & ((1 << uint(eh.globalDepth)) - 1)
}

// HashKey exposes the configured hash function. It is pure and requires no
// locking.
func (eh *ExtendibleHash[K, V]) HashKey(key K) uint64 {
	return eh.hash(key)
}

// GetGlobalDepth returns the directory index bit width.
func (eh *ExtendibleHash[K, V]) GetGlobalDepth() int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.globalDepth
}

// GetLocalDepth returns the local depth of the bucket referenced by
// directory slot id, or -1 if the slot is out of range.
func (eh *ExtendibleHash[K, V]) GetLocalDepth(id int) int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	if id < 0 || id >= len(eh.directory) {
		return -1
	}
	return eh.directory[id].localDepth
}

// GetNumBuckets returns the number of distinct buckets in the table.
func (eh *ExtendibleHash[K, V]) GetNumBuckets() int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.bucketCount
}

// Size returns the total number of key/value pairs stored.
func (eh *ExtendibleHash[K, V]) Size() int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.pairCount
}

// Find looks up key and reports whether it is present.
func (eh *ExtendibleHash[K, V]) Find(key K) (V, bool) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	b := eh.directory[eh.index(eh.hash(key))]
	v, ok := b.items[key]
	return v, ok
}

// Remove deletes key if present, reporting whether anything was removed.
// Buckets are never merged and the directory never shrinks.
func (eh *ExtendibleHash[K, V]) Remove(key K) bool {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	b := eh.directory[eh.index(eh.hash(key))]
	if _, ok := b.items[key]; !ok {
		return false
	}
	delete(b.items, key)
	eh.pairCount--
	return true
}

// Insert adds or overwrites key/value, splitting the target bucket (and
// growing the directory, if needed) when it exceeds bucketCapacity.
func (eh *ExtendibleHash[K, V]) Insert(key K, value V) error {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	h := eh.hash(key)
	idx := eh.index(h)
	b := eh.directory[idx]

	if _, exists := b.items[key]; exists {
		b.items[key] = value
		return nil
	}

	b.items[key] = value
	eh.pairCount++

	if len(b.items) <= eh.bucketCapacity {
		return nil
	}

	oldIndex := b.id
	oldDepth := b.localDepth
	sibling, err := eh.split(b)
	if err != nil {
		b.localDepth = oldDepth
		return err
	}

	if b.localDepth > eh.globalDepth {
		eh.growDirectory(b.localDepth)
	}
	eh.redistributeSlots(oldIndex, oldDepth, b, sibling)
	eh.bucketCount++
	return nil
}

// split redistributes b's items into a new sibling bucket by inspecting
// increasing low-order hash bits, incrementing local depth each round. If
// a round fails to separate the items (all fall on the same side — the
// degenerate case), it retries at the next depth. MaxDepth bounds this so
// a pathological hash reports an error instead of looping forever.
func (eh *ExtendibleHash[K, V]) split(b *bucket[K, V]) (*bucket[K, V], error) {
	sibling := newBucket[K, V](0, b.localDepth)

	for len(sibling.items) == 0 {
		b.localDepth++
		sibling.localDepth++

		if b.localDepth > MaxDepth {
			return nil, fmt.Errorf("hashindex: cannot split bucket %d, local depth exceeded %d", b.id, MaxDepth)
		}

		bit := uint64(1) << uint(b.localDepth-1)
		for k, v := range b.items {
			if eh.hash(k)&bit != 0 {
				sibling.items[k] = v
				sibling.id = eh.hash(k) & ((1 << uint(b.localDepth)) - 1)
				delete(b.items, k)
			}
		}

		if len(b.items) == 0 {
			b.items, sibling.items = sibling.items, b.items
			b.id = sibling.id
		}
	}

	return sibling, nil
}

// growDirectory doubles the directory until its length is 2^newDepth,
// duplicating every existing slot periodically (the standard extendible
// hashing directory-doubling step: every bucket whose local depth is
// still below the old global depth already tiles correctly at the old
// period, so replicating the old directory at that period into the
// expanded slots preserves it exactly). The bucket that just split is
// repointed afterward by redistributeSlots, which also backfills any
// hash pattern this split's single bucket never had a representative
// for — see its doc comment for why that can happen.
func (eh *ExtendibleHash[K, V]) growDirectory(newDepth int) {
	oldSize := len(eh.directory)
	eh.globalDepth = newDepth
	newSize := 1 << uint(newDepth)

	grown := make([]*bucket[K, V], newSize)
	for i := range grown {
		grown[i] = eh.directory[i%oldSize]
	}
	eh.directory = grown
}

// redistributeSlots repoints every directory slot that used to alias the
// bucket which just split (matched by its pre-split id at its pre-split
// depth) to either the bucket or its new sibling, by the low bits at
// their shared new local depth.
//
// A single split() call can jump local depth by more than one bit at
// once (the degenerate-split retry in split increments depth again
// whenever a round fails to separate any items). When it does, some hash
// patterns at the new depth never had any item to route them to a
// bucket: neither b's id nor sibling's id matches. Those slots are given
// a fresh, empty bucket for that exact pattern rather than left
// unassigned, so every slot in the table always references a real
// bucket, as the data model requires.
func (eh *ExtendibleHash[K, V]) redistributeSlots(oldIndex uint64, oldDepth int, b, sibling *bucket[K, V]) {
	oldMask := uint64(1<<uint(oldDepth) - 1)
	newMask := uint64(1<<uint(b.localDepth) - 1)
	fillers := make(map[uint64]*bucket[K, V])

	for i := range eh.directory {
		if uint64(i)&oldMask != oldIndex&oldMask {
			continue
		}
		pattern := uint64(i) & newMask
		switch pattern {
		case b.id:
			eh.directory[i] = b
		case sibling.id:
			eh.directory[i] = sibling
		default:
			fb, ok := fillers[pattern]
			if !ok {
				fb = newBucket[K, V](pattern, b.localDepth)
				fillers[pattern] = fb
				eh.bucketCount++
			}
			eh.directory[i] = fb
		}
	}
}
