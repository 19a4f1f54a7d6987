package bptree

import (
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/search"
)

// lowerBound returns the index of the first entry with a key not less than
// key: an exact match's own index, or search.Binary's "next greater" index
// if there's no exact match, which is the same position either way.
func (n *LeafPage[K]) lowerBound(key K) int {
	idx, _ := search.Binary(key, n.allKeys())
	return int(idx)
}

// IndexIterator walks a BPlusTree's entries in ascending key order across
// the leaf chain. It holds the tree's read lock for its entire lifetime, so
// callers must always call Close once done, including on early return.
type IndexIterator[K FixedKey] struct {
	tree   *BPlusTree[K]
	leaf   *LeafPage[K]
	index  int
	closed bool
}

// Begin starts an iterator at the first entry in the tree.
func (t *BPlusTree[K]) Begin() (*IndexIterator[K], error) {
	t.mu.RLock()

	id := t.rootPageID()
	for {
		pg, err := t.pool.FetchPage(id)
		if err != nil {
			t.mu.RUnlock()
			return nil, err
		}

		if IsLeafPage(pg) {
			return &IndexIterator[K]{tree: t, leaf: LoadLeafPage[K](pg), index: 0}, nil
		}

		internal := LoadInternalPage[K](pg)
		next := internal.ValueAt(0)
		t.pool.UnpinPage(id, false)
		id = next
	}
}

// Seek starts an iterator at the first entry with a key greater than or
// equal to key.
func (t *BPlusTree[K]) Seek(key K) (*IndexIterator[K], error) {
	t.mu.RLock()

	id := t.rootPageID()
	for {
		pg, err := t.pool.FetchPage(id)
		if err != nil {
			t.mu.RUnlock()
			return nil, err
		}

		if IsLeafPage(pg) {
			leaf := LoadLeafPage[K](pg)
			it := &IndexIterator[K]{tree: t, leaf: leaf, index: leaf.lowerBound(key)}
			if it.index >= leaf.GetSize() {
				// Every entry in this leaf is below key, so the first entry at
				// or after key, if any, opens the next leaf in the chain.
				it.index = leaf.GetSize() - 1
				if err := it.Next(); err != nil {
					it.Close()
					return nil, err
				}
			}
			return it, nil
		}

		internal := LoadInternalPage[K](pg)
		next := internal.Lookup(key)
		t.pool.UnpinPage(id, false)
		id = next
	}
}

// Valid reports whether the iterator currently points at an entry.
func (it *IndexIterator[K]) Valid() bool {
	return !it.closed && it.leaf != nil && it.index < it.leaf.GetSize()
}

// Key returns the entry the iterator currently points at. Only valid when
// Valid reports true.
func (it *IndexIterator[K]) Key() K {
	return it.leaf.KeyAt(it.index)
}

// RID returns the record id the iterator currently points at. Only valid
// when Valid reports true.
func (it *IndexIterator[K]) RID() RID {
	return it.leaf.RIDAt(it.index)
}

// Next advances the iterator to the following entry, crossing into the next
// leaf via the leaf chain if the current one is exhausted.
func (it *IndexIterator[K]) Next() error {
	if it.closed || it.leaf == nil {
		return nil
	}

	it.index++
	if it.index < it.leaf.GetSize() {
		return nil
	}

	nextID := it.leaf.GetNextPageID()
	oldID := it.leaf.Page().ID()
	it.tree.pool.UnpinPage(oldID, false)

	if nextID == page.InvalidPageID {
		it.leaf = nil
		return nil
	}

	pg, err := it.tree.pool.FetchPage(nextID)
	if err != nil {
		it.leaf = nil
		return err
	}
	it.leaf = LoadLeafPage[K](pg)
	it.index = 0
	return nil
}

// Close releases the iterator's pinned leaf page and the tree's read lock.
// Safe to call more than once.
func (it *IndexIterator[K]) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if it.leaf != nil {
		it.tree.pool.UnpinPage(it.leaf.Page().ID(), false)
		it.leaf = nil
	}
	it.tree.mu.RUnlock()
}
