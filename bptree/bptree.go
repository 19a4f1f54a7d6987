package bptree

import (
	"sync"

	"github.com/relicore/storage-engine/buffer"
	"github.com/relicore/storage-engine/header"
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/storageerr"
)

// BPlusTree is a named, disk-resident B+ tree index over a shared buffer
// pool. Its root page id lives in a header.Header directory entry rather
// than a dedicated metadata page, so many trees can share one pool and one
// backing disk.
//
// Grounded on kv/btree.go's BTree: FindLeaf/insertIntoParent/
// coalesceOrRedistribute/AdjustRoot, reworked from its recursive trace-walk
// into explicit loops so propagating a split or merge up the tree doesn't
// grow the Go call stack with tree height.
//
// Concurrency is coarse: one tree-wide RWMutex serializes all writers and
// lets reads run in parallel, instead of page-level latch crabbing. Finer-grained latching is future work; see DESIGN.md.
type BPlusTree[K FixedKey] struct {
	name string
	pool *buffer.Pool
	hdr  *header.Header
	mu   sync.RWMutex
}

// New opens the named tree, creating an empty one (a single empty leaf
// root) if it doesn't already exist in hdr.
func New[K FixedKey](name string, pool *buffer.Pool, hdr *header.Header) (*BPlusTree[K], error) {
	t := &BPlusTree[K]{name: name, pool: pool, hdr: hdr}

	if _, ok := hdr.GetRootPageID(name); ok {
		return t, nil
	}

	pg, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	InitLeafPage[K](pg, page.InvalidPageID)
	rootID := pg.ID()
	pool.UnpinPage(rootID, true)

	if err := hdr.SetRootPageID(name, rootID); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *BPlusTree[K]) rootPageID() page.PageID {
	id, _ := t.hdr.GetRootPageID(t.name)
	return id
}

func (t *BPlusTree[K]) setRootPageID(id page.PageID) error {
	return t.hdr.SetRootPageID(t.name, id)
}

// IsEmpty reports whether the tree currently holds no entries.
func (t *BPlusTree[K]) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pg, err := t.pool.FetchPage(t.rootPageID())
	if err != nil {
		return true
	}
	defer t.pool.UnpinPage(pg.ID(), false)

	if IsLeafPage(pg) {
		return LoadLeafPage[K](pg).GetSize() == 0
	}
	return false
}

// GetValue looks up key, returning storageerr.ErrKeyNotFound if absent.
func (t *BPlusTree[K]) GetValue(key K) (RID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id := t.rootPageID()
	for {
		pg, err := t.pool.FetchPage(id)
		if err != nil {
			return RID{}, err
		}

		if IsLeafPage(pg) {
			leaf := LoadLeafPage[K](pg)
			rid, ok := leaf.Lookup(key)
			t.pool.UnpinPage(id, false)
			if !ok {
				return RID{}, storageerr.ErrKeyNotFound
			}
			return rid, nil
		}

		internal := LoadInternalPage[K](pg)
		next := internal.Lookup(key)
		t.pool.UnpinPage(id, false)
		id = next
	}
}

// findLeafWithTrace descends to the leaf that key belongs in, returning the
// ids of every internal page visited along the way (top-down) and the leaf
// itself. Every page named in the returned trace, and the leaf, remains
// pinned; the caller is responsible for unpinning all of them.
func (t *BPlusTree[K]) findLeafWithTrace(key K) ([]page.PageID, *LeafPage[K], error) {
	var trace []page.PageID
	id := t.rootPageID()
	for {
		pg, err := t.pool.FetchPage(id)
		if err != nil {
			t.unpinTrace(trace, false)
			return nil, nil, err
		}

		if IsLeafPage(pg) {
			return trace, LoadLeafPage[K](pg), nil
		}

		trace = append(trace, id)
		internal := LoadInternalPage[K](pg)
		id = internal.Lookup(key)
	}
}

func (t *BPlusTree[K]) unpinTrace(trace []page.PageID, dirty bool) {
	for _, id := range trace {
		t.pool.UnpinPage(id, dirty)
	}
}

// Insert adds key/rid, returning storageerr.ErrKeyExists if key is already
// present.
func (t *BPlusTree[K]) Insert(key K, rid RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace, leaf, err := t.findLeafWithTrace(key)
	if err != nil {
		return err
	}
	defer t.unpinTrace(trace, false)

	if _, ok := leaf.Lookup(key); ok {
		t.pool.UnpinPage(leaf.Page().ID(), false)
		return storageerr.ErrKeyExists
	}

	if !leaf.IsFull() {
		leaf.Insert(key, rid)
		t.pool.UnpinPage(leaf.Page().ID(), true)
		return nil
	}

	return t.splitLeafAndInsert(trace, leaf, key, rid)
}

func (t *BPlusTree[K]) splitLeafAndInsert(trace []page.PageID, leaf *LeafPage[K], key K, rid RID) error {
	rightPg, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(leaf.Page().ID(), true)
		return err
	}
	right := InitLeafPage[K](rightPg, leaf.GetParentPageID())
	sep := leaf.MoveHalfTo(right)

	if key < sep {
		leaf.Insert(key, rid)
	} else {
		right.Insert(key, rid)
	}

	leftID := leaf.Page().ID()
	rightID := right.Page().ID()
	t.pool.UnpinPage(leftID, true)
	t.pool.UnpinPage(rightID, true)

	return t.insertIntoParent(trace, leftID, sep, rightID)
}

// insertIntoParent links rightID into leftID's parent under separator
// sepKey, iteratively propagating a split one level up each time the parent
// it lands in is already full, instead of recursing.
func (t *BPlusTree[K]) insertIntoParent(trace []page.PageID, leftID page.PageID, sepKey K, rightID page.PageID) error {
	for {
		if len(trace) == 0 {
			newRootPg, err := t.pool.NewPage()
			if err != nil {
				return err
			}
			newRoot := InitInternalPage[K](newRootPg, page.InvalidPageID)
			newRoot.PopulateNewRoot(leftID, sepKey, rightID)
			newRootID := newRootPg.ID()

			t.setChildParent(leftID, newRootID)
			t.setChildParent(rightID, newRootID)

			if err := t.setRootPageID(newRootID); err != nil {
				t.pool.UnpinPage(newRootID, true)
				return err
			}
			t.pool.UnpinPage(newRootID, true)
			return nil
		}

		parentID := trace[len(trace)-1]
		parentPg, err := t.pool.FetchPage(parentID)
		if err != nil {
			return err
		}
		parent := LoadInternalPage[K](parentPg)

		if !parent.IsFull() {
			parent.InsertNodeAfter(leftID, sepKey, rightID)
			t.setChildParent(rightID, parentID)
			t.pool.UnpinPage(parentID, true)
			return nil
		}

		siblingPg, err := t.pool.NewPage()
		if err != nil {
			t.pool.UnpinPage(parentID, false)
			return err
		}
		sibling := InitInternalPage[K](siblingPg, parent.GetParentPageID())
		midKey := parent.MoveHalfTo(sibling, t.reparentFunc())

		if sepKey < midKey {
			parent.InsertNodeAfter(leftID, sepKey, rightID)
			t.setChildParent(rightID, parentID)
		} else {
			sibling.InsertNodeAfter(leftID, sepKey, rightID)
			t.setChildParent(rightID, siblingPg.ID())
		}

		t.pool.UnpinPage(parentID, true)

		leftID = parentID
		rightID = siblingPg.ID()
		sepKey = midKey
		trace = trace[:len(trace)-1]

		t.pool.UnpinPage(rightID, true)
	}
}

func (t *BPlusTree[K]) reparentFunc() func(page.PageID, page.PageID) {
	return t.setChildParent
}

func (t *BPlusTree[K]) setChildParent(childID, parentID page.PageID) {
	pg, err := t.pool.FetchPage(childID)
	if err != nil {
		return
	}
	if IsLeafPage(pg) {
		LoadLeafPage[K](pg).SetParentPageID(parentID)
	} else {
		LoadInternalPage[K](pg).SetParentPageID(parentID)
	}
	t.pool.UnpinPage(childID, true)
}

// Remove deletes key, returning storageerr.ErrKeyNotFound if absent.
func (t *BPlusTree[K]) Remove(key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace, leaf, err := t.findLeafWithTrace(key)
	if err != nil {
		return err
	}
	defer t.unpinTrace(trace, false)

	if _, ok := leaf.Lookup(key); !ok {
		t.pool.UnpinPage(leaf.Page().ID(), false)
		return storageerr.ErrKeyNotFound
	}

	leaf.RemoveAndDeleteRecord(key)

	if len(trace) == 0 || !leaf.IsUnderflow() {
		t.pool.UnpinPage(leaf.Page().ID(), true)
		return nil
	}

	return t.coalesceLeafUpward(trace, leaf)
}

// coalesceLeafUpward resolves leaf's underflow against a sibling, then
// iteratively walks up the trace resolving any internal-node underflow that
// results, instead of recursing one stack frame per level.
func (t *BPlusTree[K]) coalesceLeafUpward(trace []page.PageID, leaf *LeafPage[K]) error {
	parentID := trace[len(trace)-1]
	parentPg, err := t.pool.FetchPage(parentID)
	if err != nil {
		t.pool.UnpinPage(leaf.Page().ID(), true)
		return err
	}
	parent := LoadInternalPage[K](parentPg)
	idx := parent.ValueIndex(leaf.Page().ID())

	removed, err := t.resolveLeafUnderflow(parent, idx, leaf)
	if err != nil {
		t.pool.UnpinPage(parentID, true)
		return err
	}
	if !removed {
		t.pool.UnpinPage(parentID, true)
		return nil
	}

	node := parent
	nodePg := parentPg
	rest := trace[:len(trace)-1]

	for {
		if len(rest) == 0 {
			return t.adjustRoot(node, nodePg)
		}
		if !node.IsUnderflow() {
			t.pool.UnpinPage(nodePg.ID(), true)
			return nil
		}

		grandParentID := rest[len(rest)-1]
		grandParentPg, err := t.pool.FetchPage(grandParentID)
		if err != nil {
			t.pool.UnpinPage(nodePg.ID(), true)
			return err
		}
		grandParent := LoadInternalPage[K](grandParentPg)
		idx := grandParent.ValueIndex(nodePg.ID())

		removed, err := t.resolveInternalUnderflow(grandParent, idx, node)
		if err != nil {
			t.pool.UnpinPage(grandParentID, true)
			return err
		}
		if !removed {
			t.pool.UnpinPage(grandParentID, true)
			return nil
		}

		node = grandParent
		nodePg = grandParentPg
		rest = rest[:len(rest)-1]
	}
}

// resolveLeafUnderflow redistributes from or coalesces with a sibling of
// leaf, whose position among parent's children is idx. It unpins leaf
// unconditionally before returning, and reports whether an entry was
// removed from parent (a merge, vs. a same-population redistribution).
func (t *BPlusTree[K]) resolveLeafUnderflow(parent *InternalPage[K], idx int, leaf *LeafPage[K]) (bool, error) {
	if idx > 0 {
		leftID := parent.ValueAt(idx - 1)
		leftPg, err := t.pool.FetchPage(leftID)
		if err != nil {
			t.pool.UnpinPage(leaf.Page().ID(), true)
			return false, err
		}
		left := LoadLeafPage[K](leftPg)

		if left.GetSize() > minOccupancy(left.GetMaxSize()) {
			newKey := left.MoveLastToFrontOf(leaf)
			parent.SetKeyAt(idx, newKey)
			t.pool.UnpinPage(leftID, true)
			t.pool.UnpinPage(leaf.Page().ID(), true)
			return false, nil
		}

		leafID := leaf.Page().ID()
		leaf.MoveAllTo(left)
		t.pool.UnpinPage(leftID, true)
		t.pool.UnpinPage(leafID, true)
		t.pool.DeletePage(leafID)
		parent.Remove(idx)
		return true, nil
	}

	rightID := parent.ValueAt(idx + 1)
	rightPg, err := t.pool.FetchPage(rightID)
	if err != nil {
		t.pool.UnpinPage(leaf.Page().ID(), true)
		return false, err
	}
	right := LoadLeafPage[K](rightPg)

	if right.GetSize() > minOccupancy(right.GetMaxSize()) {
		newKey := right.MoveFirstToEndOf(leaf)
		parent.SetKeyAt(idx+1, newKey)
		t.pool.UnpinPage(rightID, true)
		t.pool.UnpinPage(leaf.Page().ID(), true)
		return false, nil
	}

	right.MoveAllTo(leaf)
	t.pool.UnpinPage(rightID, true)
	t.pool.DeletePage(rightID)
	t.pool.UnpinPage(leaf.Page().ID(), true)
	parent.Remove(idx + 1)
	return true, nil
}

// resolveInternalUnderflow is resolveLeafUnderflow's counterpart for an
// underflowing internal node.
func (t *BPlusTree[K]) resolveInternalUnderflow(parent *InternalPage[K], idx int, node *InternalPage[K]) (bool, error) {
	reparent := t.reparentFunc()

	if idx > 0 {
		leftID := parent.ValueAt(idx - 1)
		leftPg, err := t.pool.FetchPage(leftID)
		if err != nil {
			t.pool.UnpinPage(node.Page().ID(), true)
			return false, err
		}
		left := LoadInternalPage[K](leftPg)

		if left.GetSize() > minOccupancy(left.GetMaxSize()) {
			middleKey := parent.KeyAt(idx)
			newMiddle := left.MoveLastToFrontOf(node, middleKey, reparent)
			parent.SetKeyAt(idx, newMiddle)
			t.pool.UnpinPage(leftID, true)
			t.pool.UnpinPage(node.Page().ID(), true)
			return false, nil
		}

		nodeID := node.Page().ID()
		middleKey := parent.KeyAt(idx)
		node.MoveAllTo(left, middleKey, reparent)
		t.pool.UnpinPage(leftID, true)
		t.pool.UnpinPage(nodeID, true)
		t.pool.DeletePage(nodeID)
		parent.Remove(idx)
		return true, nil
	}

	rightID := parent.ValueAt(idx + 1)
	rightPg, err := t.pool.FetchPage(rightID)
	if err != nil {
		t.pool.UnpinPage(node.Page().ID(), true)
		return false, err
	}
	right := LoadInternalPage[K](rightPg)

	if right.GetSize() > minOccupancy(right.GetMaxSize()) {
		middleKey := parent.KeyAt(idx + 1)
		newMiddle := right.MoveFirstToEndOf(node, middleKey, reparent)
		parent.SetKeyAt(idx+1, newMiddle)
		t.pool.UnpinPage(rightID, true)
		t.pool.UnpinPage(node.Page().ID(), true)
		return false, nil
	}

	middleKey := parent.KeyAt(idx + 1)
	right.MoveAllTo(node, middleKey, reparent)
	t.pool.UnpinPage(rightID, true)
	t.pool.DeletePage(rightID)
	t.pool.UnpinPage(node.Page().ID(), true)
	parent.Remove(idx + 1)
	return true, nil
}

// adjustRoot collapses root down by one level once it's left with a single
// child, the one case where an internal node is allowed to underflow
// indefinitely (down to holding just one child pointer and no real keys).
func (t *BPlusTree[K]) adjustRoot(root *InternalPage[K], rootPg *page.Page) error {
	if root.GetSize() != 1 {
		t.pool.UnpinPage(rootPg.ID(), true)
		return nil
	}

	onlyChild := root.RemoveAndReturnOnlyChild()
	t.setChildParent(onlyChild, page.InvalidPageID)
	rootID := rootPg.ID()
	// The old root is pinned twice: by the caller's descent trace and by the
	// fetch that produced rootPg. Both pins are dropped so DeletePage can
	// succeed; the trace's later unpin of the deleted page is a no-op.
	t.pool.UnpinPage(rootID, true)
	t.pool.UnpinPage(rootID, true)

	if err := t.setRootPageID(onlyChild); err != nil {
		return err
	}
	return t.pool.DeletePage(rootID)
}
