// Package hash implements an in-memory extendible hash index: a directory of
// 2^globalDepth slots, each pointing at a bucket holding up to bucketSize
// entries, doubling the directory and splitting buckets as they fill.
//
// It is used two ways elsewhere in this module: as the buffer pool's page
// table (page id -> frame id) and as the back-index a Replacer uses to find
// its own linked-list node for a given frame in O(1). Grounded on
// brown-csci1270-2021-db's pkg/hash HashTable, adapted from a page-backed,
// on-disk bucket layout to an in-memory one, since nothing in this module's
// scope persists the page table or replacer state to disk.
package hash

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/relicore/storage-engine/storageerr"
)

// Hashable is the constraint on keys an ExtendibleHash can index: any
// comparable type that can report its own 64-bit hash.
type Hashable interface {
	comparable
	Hash() uint64
}

// DefaultBucketSize bounds how many entries a bucket holds before it must
// split. Small on purpose: this index tracks buffer-pool-sized working sets
// (frame counts, cache sizes), not disk-scale data.
const DefaultBucketSize = 4

type bucket[K Hashable, V any] struct {
	localDepth int
	entries    map[K]V
}

func newBucket[K Hashable, V any](localDepth int) *bucket[K, V] {
	return &bucket[K, V]{
		localDepth: localDepth,
		entries:    make(map[K]V, DefaultBucketSize),
	}
}

// ExtendibleHash is a directory of buckets, grown by doubling, indexed by
// the low globalDepth bits of a key's hash.
type ExtendibleHash[K Hashable, V any] struct {
	mu          sync.RWMutex
	globalDepth int
	bucketSize  int
	directory   []*bucket[K, V]
	numBuckets  int
}

// New creates an ExtendibleHash starting at global depth 1 (two directory
// slots, each its own bucket), using bucketSize as each bucket's capacity
// before it must split.
func New[K Hashable, V any](bucketSize int) *ExtendibleHash[K, V] {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}

	h := &ExtendibleHash[K, V]{
		globalDepth: 1,
		bucketSize:  bucketSize,
		directory:   make([]*bucket[K, V], 2),
	}
	b0 := newBucket[K, V](1)
	b1 := newBucket[K, V](1)
	h.directory[0] = b0
	h.directory[1] = b1
	h.numBuckets = 2
	return h
}

// directoryIndex returns the directory slot a key's hash maps to at the
// current global depth: the low globalDepth bits of the hash.
func (h *ExtendibleHash[K, V]) directoryIndex(key K) int {
	mask := uint64(1)<<uint(h.globalDepth) - 1
	return int(key.Hash() & mask)
}

// Find looks up key, reporting whether it was present.
func (h *ExtendibleHash[K, V]) Find(key K) (V, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b := h.directory[h.directoryIndex(key)]
	v, ok := b.entries[key]
	return v, ok
}

// Insert adds or overwrites the value for key, splitting and doubling the
// directory as many times as needed to make room. The whole operation runs
// under one exclusive lock: rather than a re-entrant recursive call into a
// lock-acquiring public Insert, the retry after a split is an internal loop,
// so the directory's invariants are never observed mid-update by another
// goroutine.
func (h *ExtendibleHash[K, V]) Insert(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		idx := h.directoryIndex(key)
		b := h.directory[idx]

		if _, exists := b.entries[key]; exists {
			b.entries[key] = value
			return
		}

		if len(b.entries) < h.bucketSize {
			b.entries[key] = value
			return
		}

		h.splitBucket(idx)
		// Retry: the key's directory slot may now point at a freshly split
		// bucket with room, or the split may not have helped (all entries
		// hashed to the same side) in which case the next loop iteration
		// splits again.
	}
}

// splitBucket splits the bucket at directory slot idx into two buckets at
// localDepth+1, doubling the directory first if the bucket's local depth has
// caught up to the global depth.
func (h *ExtendibleHash[K, V]) splitBucket(idx int) {
	old := h.directory[idx]

	if old.localDepth == h.globalDepth {
		h.doubleDirectory()
	}

	newLocalDepth := old.localDepth + 1
	old.localDepth = newLocalDepth
	sibling := newBucket[K, V](newLocalDepth)
	h.numBuckets++

	// The bit that now distinguishes the two halves of the split bucket.
	splitBit := uint64(1) << uint(newLocalDepth-1)

	for k, v := range old.entries {
		if k.Hash()&splitBit != 0 {
			sibling.entries[k] = v
			delete(old.entries, k)
		}
	}

	// Repoint every directory slot that used to point at old and whose
	// split bit is set to point at sibling instead.
	for i := range h.directory {
		if h.directory[i] == old && uint64(i)&splitBit != 0 {
			h.directory[i] = sibling
		}
	}
}

// doubleDirectory doubles the directory's size, with the new upper half
// mirroring the lower half's bucket pointers.
func (h *ExtendibleHash[K, V]) doubleDirectory() {
	old := h.directory
	h.directory = make([]*bucket[K, V], len(old)*2)
	copy(h.directory, old)
	copy(h.directory[len(old):], old)
	h.globalDepth++
}

// Remove deletes key, reporting whether it was present. Buckets are never
// merged back together on removal: an extendible hash shrinking its
// directory is not something this module's callers (a page table, a
// replacer back-index) need, since both churn at roughly constant size.
func (h *ExtendibleHash[K, V]) Remove(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.directory[h.directoryIndex(key)]
	if _, ok := b.entries[key]; !ok {
		return false
	}
	delete(b.entries, key)
	return true
}

// GetGlobalDepth returns the current directory depth.
func (h *ExtendibleHash[K, V]) GetGlobalDepth() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.globalDepth
}

// GetLocalDepth returns the local depth of the bucket at the given
// directory index.
func (h *ExtendibleHash[K, V]) GetLocalDepth(directoryIndex int) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if directoryIndex < 0 || directoryIndex >= len(h.directory) {
		return 0, fmt.Errorf("hash: directory index %d out of range [0, %d): %w", directoryIndex, len(h.directory), storageerr.ErrBucketNotFound)
	}
	return h.directory[directoryIndex].localDepth, nil
}

// GetNumBuckets returns the number of distinct buckets currently allocated
// (always <= len(directory), since multiple directory slots can share a
// bucket).
func (h *ExtendibleHash[K, V]) GetNumBuckets() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.numBuckets
}

// Len returns the total number of entries across every bucket.
func (h *ExtendibleHash[K, V]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*bucket[K, V]]bool)
	n := 0
	for _, b := range h.directory {
		if seen[b] {
			continue
		}
		seen[b] = true
		n += len(b.entries)
	}
	return n
}

// Keys returns every key currently indexed, in no particular order. The
// buffer pool uses it to walk its page table in FlushAllPages; it's built on
// x/exp/maps.Keys rather than a hand-rolled loop.
func (h *ExtendibleHash[K, V]) Keys() []K {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*bucket[K, V]]bool)
	var keys []K
	for _, b := range h.directory {
		if seen[b] {
			continue
		}
		seen[b] = true
		keys = append(keys, maps.Keys(b.entries)...)
	}
	return keys
}
