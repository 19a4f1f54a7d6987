package bptree

import (
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/search"
	"github.com/relicore/storage-engine/util"
)

// InternalPage is a B+ tree internal (non-leaf) node: size key/child-page
// pairs, where keys[0] is a dummy value never compared against (index 0's
// child covers "less than keys[1]"), following the common convention of
// pairing each child pointer with the separator key to its left (the
// smallest key that child covers).
//
// For size entries there are size valid children (values[0..size-1]) and
// size valid keys, of which keys[1..size-1] are real separators.
type InternalPage[K FixedKey] struct {
	pg *page.Page
}

// internalValueSize is the encoded width of one child page id; a key's
// width is keySize[K]().
const internalValueSize = 4

func internalSlotSize[K FixedKey]() int {
	return keySize[K]() + internalValueSize
}

func internalMaxSize[K FixedKey]() int {
	avail := page.PageDataSize - commonHeaderSize
	return avail / internalSlotSize[K]()
}

func internalKeyOffset[K FixedKey](i int) int {
	return commonHeaderSize + i*keySize[K]()
}

func internalValueOffset[K FixedKey](i int) int {
	maxSize := internalMaxSize[K]()
	return commonHeaderSize + maxSize*keySize[K]() + i*internalValueSize
}

// InitInternalPage formats pg as a brand-new, empty InternalPage.
func InitInternalPage[K FixedKey](pg *page.Page, parentID page.PageID) *InternalPage[K] {
	writePageType(pg, internalPageType)
	writeInt32(pg, offsetSize, 0)
	writeInt32(pg, offsetMaxSize, int32(internalMaxSize[K]()))
	writeInt32(pg, offsetParentPageID, int32(parentID))
	pg.MarkDirty(true)
	return &InternalPage[K]{pg: pg}
}

// LoadInternalPage wraps an already-encoded internal page.
func LoadInternalPage[K FixedKey](pg *page.Page) *InternalPage[K] {
	return &InternalPage[K]{pg: pg}
}

func (n *InternalPage[K]) Page() *page.Page { return n.pg }

func (n *InternalPage[K]) GetSize() int { return int(readInt32(n.pg, offsetSize)) }

func (n *InternalPage[K]) setSize(size int) {
	writeInt32(n.pg, offsetSize, int32(size))
	n.pg.MarkDirty(true)
}

func (n *InternalPage[K]) GetMaxSize() int { return int(readInt32(n.pg, offsetMaxSize)) }

func (n *InternalPage[K]) GetParentPageID() page.PageID {
	return page.PageID(readInt32(n.pg, offsetParentPageID))
}

func (n *InternalPage[K]) SetParentPageID(id page.PageID) {
	writeInt32(n.pg, offsetParentPageID, int32(id))
	n.pg.MarkDirty(true)
}

// IsFull reports whether this node has no more room for another key/child
// pair.
func (n *InternalPage[K]) IsFull() bool {
	return n.GetSize() == n.GetMaxSize()
}

// IsUnderflow reports whether this node has fewer than the minimum
// occupancy (half its max size, rounded up), the trigger for
// coalesce-or-redistribute during deletion.
func (n *InternalPage[K]) IsUnderflow() bool {
	return n.GetSize() < minOccupancy(n.GetMaxSize())
}

func (n *InternalPage[K]) KeyAt(i int) K {
	return readKeyAt[K](n.pg.Data[:], internalKeyOffset[K](i), keySize[K]())
}

func (n *InternalPage[K]) setKeyAt(i int, key K) {
	writeKeyAt(n.pg.Data[:], internalKeyOffset[K](i), key)
	n.pg.MarkDirty(true)
}

// SetKeyAt overwrites the separator key at index i, used by the tree to
// patch a parent's separator after redistributing an entry between
// siblings.
func (n *InternalPage[K]) SetKeyAt(i int, key K) {
	n.setKeyAt(i, key)
}

func (n *InternalPage[K]) ValueAt(i int) page.PageID {
	return page.PageID(readInt32(n.pg, internalValueOffset[K](i)))
}

func (n *InternalPage[K]) setValueAt(i int, v page.PageID) {
	writeInt32(n.pg, internalValueOffset[K](i), int32(v))
	n.pg.MarkDirty(true)
}

// allKeys/allValues materialize the in-use portion of the key/value arrays,
// used by operations that need to shift several entries at once.
func (n *InternalPage[K]) allKeys() []K {
	size := n.GetSize()
	keys := make([]K, size)
	for i := 0; i < size; i++ {
		keys[i] = n.KeyAt(i)
	}
	return keys
}

func (n *InternalPage[K]) allValues() []page.PageID {
	size := n.GetSize()
	values := make([]page.PageID, size)
	for i := 0; i < size; i++ {
		values[i] = n.ValueAt(i)
	}
	return values
}

func (n *InternalPage[K]) setAll(keys []K, values []page.PageID) {
	for i, k := range keys {
		n.setKeyAt(i, k)
	}
	for i, v := range values {
		n.setValueAt(i, v)
	}
	n.setSize(len(values))
}

// Lookup returns the child page id to follow for the given key: the first
// child whose separator key is greater than key, or the last child if key
// is greater than every separator.
func (n *InternalPage[K]) Lookup(key K) page.PageID {
	keys := n.allKeys()
	// keys[0] is a dummy; search only the real separators keys[1:].
	idx, found := search.Binary(key, keys[1:])
	if found {
		// An exact match on a separator routes to the child on its right.
		return n.ValueAt(int(idx) + 1)
	}
	return n.ValueAt(int(idx))
}

// ValueIndex returns the index of the given child page id among this
// node's children, used by coalesce/redistribute to find a node's position
// among its siblings.
func (n *InternalPage[K]) ValueIndex(value page.PageID) int {
	size := n.GetSize()
	for i := 0; i < size; i++ {
		if n.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// PopulateNewRoot initializes this (freshly allocated) page as a new root
// with exactly two children, used right after the tree's old root splits.
func (n *InternalPage[K]) PopulateNewRoot(oldValue page.PageID, newKey K, newValue page.PageID) {
	n.setValueAt(0, oldValue)
	n.setKeyAt(1, newKey)
	n.setValueAt(1, newValue)
	n.setSize(2)
}

// InsertNodeAfter inserts newKey/newValue immediately after the child
// pointer oldValue, used when a child splits and its new sibling needs to
// be linked into the parent. Returns the resulting size.
func (n *InternalPage[K]) InsertNodeAfter(oldValue page.PageID, newKey K, newValue page.PageID) int {
	keys := n.allKeys()
	values := n.allValues()

	at := n.ValueIndex(oldValue) + 1

	keys = append(keys, *new(K))
	values = append(values, page.InvalidPageID)
	util.ShiftRight(keys, at, len(keys)-1)
	util.ShiftRight(values, at, len(values)-1)
	keys[at] = newKey
	values[at] = newValue

	n.setAll(keys, values)
	return n.GetSize()
}

// Remove deletes the entry at index i.
func (n *InternalPage[K]) Remove(i int) {
	keys := n.allKeys()
	values := n.allValues()

	util.ShiftLeft(keys, i+1, len(keys))
	util.ShiftLeft(values, i+1, len(values))
	keys = keys[:len(keys)-1]
	values = values[:len(values)-1]

	n.setAll(keys, values)
}

// RemoveAndReturnOnlyChild empties this node (expected to hold exactly one
// child) and returns that child, used by adjustRoot when the root's only
// remaining child becomes the new root.
func (n *InternalPage[K]) RemoveAndReturnOnlyChild() page.PageID {
	only := n.ValueAt(0)
	n.setSize(0)
	return only
}

// MoveHalfTo splits this (full) node, moving its upper half to recipient.
// It returns the key that should separate the two nodes in their parent.
func (n *InternalPage[K]) MoveHalfTo(recipient *InternalPage[K], reparent func(child page.PageID, parent page.PageID)) K {
	keys := n.allKeys()
	values := n.allValues()

	mid := len(keys) / 2
	movedKeys := append([]K(nil), keys[mid:]...)
	movedValues := append([]page.PageID(nil), values[mid:]...)

	recipient.setAll(movedKeys, movedValues)
	for _, child := range movedValues {
		reparent(child, recipient.pg.ID())
	}

	n.setAll(keys[:mid], values[:mid])

	return movedKeys[0]
}

// MoveAllTo merges this node's entries onto the end of recipient, used when
// two underflowing siblings are coalesced. middleKey is the parent
// separator between the two nodes, which becomes the real key for the
// first moved entry (whose key was a dummy in this node).
func (n *InternalPage[K]) MoveAllTo(recipient *InternalPage[K], middleKey K, reparent func(child page.PageID, parent page.PageID)) {
	keys := n.allKeys()
	values := n.allValues()
	keys[0] = middleKey

	rKeys := append(recipient.allKeys(), keys...)
	rValues := append(recipient.allValues(), values...)
	recipient.setAll(rKeys, rValues)

	for _, child := range values {
		reparent(child, recipient.pg.ID())
	}

	n.setSize(0)
}

// MoveFirstToEndOf moves this node's first entry to the end of recipient,
// used to redistribute from a right sibling with entries to spare.
// middleKey is the parent separator key, which becomes real for the moved
// entry; newMiddleKey is returned as this node's new first (dummy) key's
// replacement separator in the parent.
func (n *InternalPage[K]) MoveFirstToEndOf(recipient *InternalPage[K], middleKey K, reparent func(child page.PageID, parent page.PageID)) (newMiddleKey K) {
	keys := n.allKeys()
	values := n.allValues()

	movedValue := values[0]
	newMiddleKey = keys[1]

	recipient.setKeyAt(recipient.GetSize(), middleKey)
	recipient.setValueAt(recipient.GetSize(), movedValue)
	recipient.setSize(recipient.GetSize() + 1)
	reparent(movedValue, recipient.pg.ID())

	util.ShiftLeft(keys, 1, len(keys))
	util.ShiftLeft(values, 1, len(values))
	n.setAll(keys[:len(keys)-1], values[:len(values)-1])

	return newMiddleKey
}

// MoveLastToFrontOf moves this node's last entry to the front of
// recipient, used to redistribute from a left sibling with entries to
// spare. middleKey is the parent separator key, which becomes the real key
// of recipient's old first entry; this node's old last key is returned as
// the replacement separator in the parent.
func (n *InternalPage[K]) MoveLastToFrontOf(recipient *InternalPage[K], middleKey K, reparent func(child page.PageID, parent page.PageID)) (newMiddleKey K) {
	keys := n.allKeys()
	values := n.allValues()
	last := len(values) - 1

	movedValue := values[last]
	newMiddleKey = keys[last]

	rKeys := recipient.allKeys()
	rValues := recipient.allValues()
	rKeys[0] = middleKey
	rKeys = append([]K{newMiddleKey}, rKeys...)
	rValues = append([]page.PageID{movedValue}, rValues...)
	recipient.setAll(rKeys, rValues)
	reparent(movedValue, recipient.pg.ID())

	n.setAll(keys[:last], values[:last])

	return newMiddleKey
}
