package replacer

import (
	"sync"

	"github.com/relicore/storage-engine/hash"
)

// lfuEntry tracks an evictable frame's access frequency and the sequence
// number of its last unpin, used to break frequency ties in favor of the
// least recently touched frame.
type lfuEntry struct {
	freq int
	seq  uint64
}

// LFUReplacer evicts the least-frequently-unpinned frame, breaking ties by
// recency. Unlike kv/lfu_cache.go in the teacher repo (which duplicates the
// LRU policy rather than counting frequency), this tracks a real per-frame
// access count.
//
// Candidacy bookkeeping uses a plain map rather than a hash.ExtendibleHash:
// Victim needs to scan every evictable entry's frequency to find the
// minimum, so there is no O(1) single-key lookup to speed up the way
// LRUReplacer's Pin does.
type LFUReplacer[T hash.Hashable] struct {
	mu      sync.Mutex
	entries map[T]*lfuEntry
	nextSeq uint64
}

// NewLFUReplacer creates an empty LFUReplacer.
func NewLFUReplacer[T hash.Hashable]() *LFUReplacer[T] {
	return &LFUReplacer[T]{
		entries: make(map[T]*lfuEntry),
	}
}

// Victim evicts the least frequently unpinned frame, ties broken in favor
// of the one unpinned longest ago.
func (r *LFUReplacer[T]) Victim() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if len(r.entries) == 0 {
		return zero, false
	}

	var victim T
	var victimEntry *lfuEntry
	for id, e := range r.entries {
		if victimEntry == nil ||
			e.freq < victimEntry.freq ||
			(e.freq == victimEntry.freq && e.seq < victimEntry.seq) {
			victim = id
			victimEntry = e
		}
	}

	delete(r.entries, victim)
	return victim, true
}

// Pin removes id from eviction candidacy, discarding its accumulated
// frequency. A no-op if id isn't currently evictable.
func (r *LFUReplacer[T]) Pin(id T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Unpin marks id as evictable, incrementing its access frequency if it was
// already evictable (meaning this is a repeat unpin without an intervening
// eviction), or starting it at frequency 1 otherwise.
func (r *LFUReplacer[T]) Unpin(id T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	if e, ok := r.entries[id]; ok {
		e.freq++
		e.seq = r.nextSeq
		return
	}
	r.entries[id] = &lfuEntry{freq: 1, seq: r.nextSeq}
}

// Size reports the number of frames currently evictable.
func (r *LFUReplacer[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

var _ Replacer[hashableInt] = (*LFUReplacer[hashableInt])(nil)
