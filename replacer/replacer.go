// Package replacer implements the buffer pool's eviction policies: given the
// set of currently unpinned frames, pick a victim to reclaim when a new page
// needs a frame. Grounded on kv/cache_eviction.go's CacheEviction interface
// and kv/lru_cache.go's map-based LRU, reworked to back the eviction order
// with a hash.ExtendibleHash rather than a plain map, per this module's
// buffer pool design.
package replacer

import (
	"container/list"
	"sync"

	"github.com/relicore/storage-engine/hash"
)

// Replacer is the eviction policy a BufferPoolManager consults when every
// frame is occupied and a free one is needed. Unpin marks a frame as a
// candidate for eviction; Pin removes that candidacy (the frame is back in
// active use); Victim picks and removes one candidate.
type Replacer[T hash.Hashable] interface {
	// Victim selects a frame to evict, removing it from further
	// candidacy. It reports false if no frame is currently evictable.
	Victim() (T, bool)
	// Pin removes a frame from eviction candidacy.
	Pin(id T)
	// Unpin adds a frame to eviction candidacy.
	Unpin(id T)
	// Size reports the number of frames currently evictable.
	Size() int
}

// LRUReplacer evicts the least-recently-unpinned frame first. The recency
// order lives in a container/list (front = most recently unpinned, back =
// least), and a hash.ExtendibleHash maps a frame id to its list element so
// Pin can find and remove it in O(1) rather than scanning the list.
type LRUReplacer[T hash.Hashable] struct {
	mu    sync.Mutex
	order *list.List
	index *hash.ExtendibleHash[T, *list.Element]
}

// NewLRUReplacer creates an empty LRUReplacer.
func NewLRUReplacer[T hash.Hashable]() *LRUReplacer[T] {
	return &LRUReplacer[T]{
		order: list.New(),
		index: hash.New[T, *list.Element](hash.DefaultBucketSize),
	}
}

// Victim evicts the least recently unpinned frame.
func (r *LRUReplacer[T]) Victim() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	back := r.order.Back()
	if back == nil {
		return zero, false
	}

	id := back.Value.(T)
	r.order.Remove(back)
	r.index.Remove(id)
	return id, true
}

// Pin removes id from eviction candidacy. A no-op if id isn't currently
// evictable.
func (r *LRUReplacer[T]) Pin(id T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.index.Find(id)
	if !ok {
		return
	}
	r.order.Remove(elem)
	r.index.Remove(id)
}

// Unpin marks id as evictable, most-recently-used. A no-op if id is already
// evictable.
func (r *LRUReplacer[T]) Unpin(id T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index.Find(id); ok {
		return
	}
	elem := r.order.PushFront(id)
	r.index.Insert(id, elem)
}

// Size reports the number of frames currently evictable.
func (r *LRUReplacer[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

var _ Replacer[hashableInt] = (*LRUReplacer[hashableInt])(nil)

// hashableInt is only used to anchor the Replacer interface compliance
// checks above at compile time.
type hashableInt int

func (h hashableInt) Hash() uint64 { return uint64(h) }
