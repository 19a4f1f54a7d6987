package bptree

import (
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/search"
	"github.com/relicore/storage-engine/util"
)

// LeafPage is a B+ tree leaf node: size sorted key/RID pairs, plus a
// pointer to the next leaf in key order so an IndexIterator can scan
// forward across leaves without climbing back up to an internal node.
type LeafPage[K FixedKey] struct {
	pg *page.Page
}

// ridSize is the encoded width of one RID: a PageID and a SlotNum, each a
// 4-byte int32.
const ridSize = 8

func leafSlotSize[K FixedKey]() int {
	return keySize[K]() + ridSize
}

func leafMaxSize[K FixedKey]() int {
	avail := page.PageDataSize - leafHeaderSize
	return avail / leafSlotSize[K]()
}

func leafKeyOffset[K FixedKey](i int) int {
	return leafHeaderSize + i*keySize[K]()
}

func leafRIDOffset[K FixedKey](i int) int {
	maxSize := leafMaxSize[K]()
	return leafHeaderSize + maxSize*keySize[K]() + i*ridSize
}

// InitLeafPage formats pg as a brand-new, empty LeafPage.
func InitLeafPage[K FixedKey](pg *page.Page, parentID page.PageID) *LeafPage[K] {
	writePageType(pg, leafPageType)
	writeInt32(pg, offsetSize, 0)
	writeInt32(pg, offsetMaxSize, int32(leafMaxSize[K]()))
	writeInt32(pg, offsetParentPageID, int32(parentID))
	writeInt32(pg, offsetNextPageID, int32(page.InvalidPageID))
	pg.MarkDirty(true)
	return &LeafPage[K]{pg: pg}
}

// LoadLeafPage wraps an already-encoded leaf page.
func LoadLeafPage[K FixedKey](pg *page.Page) *LeafPage[K] {
	return &LeafPage[K]{pg: pg}
}

func (n *LeafPage[K]) Page() *page.Page { return n.pg }

func (n *LeafPage[K]) GetSize() int { return int(readInt32(n.pg, offsetSize)) }

func (n *LeafPage[K]) setSize(size int) {
	writeInt32(n.pg, offsetSize, int32(size))
	n.pg.MarkDirty(true)
}

func (n *LeafPage[K]) GetMaxSize() int { return int(readInt32(n.pg, offsetMaxSize)) }

func (n *LeafPage[K]) GetParentPageID() page.PageID {
	return page.PageID(readInt32(n.pg, offsetParentPageID))
}

func (n *LeafPage[K]) SetParentPageID(id page.PageID) {
	writeInt32(n.pg, offsetParentPageID, int32(id))
	n.pg.MarkDirty(true)
}

func (n *LeafPage[K]) GetNextPageID() page.PageID {
	return page.PageID(readInt32(n.pg, offsetNextPageID))
}

func (n *LeafPage[K]) SetNextPageID(id page.PageID) {
	writeInt32(n.pg, offsetNextPageID, int32(id))
	n.pg.MarkDirty(true)
}

// IsFull reports whether this leaf has no more room for another entry.
func (n *LeafPage[K]) IsFull() bool {
	return n.GetSize() == n.GetMaxSize()
}

// IsUnderflow reports whether this leaf has fewer than the minimum
// occupancy (half its max size, rounded up).
func (n *LeafPage[K]) IsUnderflow() bool {
	return n.GetSize() < minOccupancy(n.GetMaxSize())
}

func (n *LeafPage[K]) KeyAt(i int) K {
	return readKeyAt[K](n.pg.Data[:], leafKeyOffset[K](i), keySize[K]())
}

func (n *LeafPage[K]) setKeyAt(i int, key K) {
	writeKeyAt(n.pg.Data[:], leafKeyOffset[K](i), key)
	n.pg.MarkDirty(true)
}

func (n *LeafPage[K]) RIDAt(i int) RID {
	off := leafRIDOffset[K](i)
	return RID{
		PageID:  page.PageID(readInt32(n.pg, off)),
		SlotNum: uint32(readInt32(n.pg, off+4)),
	}
}

func (n *LeafPage[K]) setRIDAt(i int, rid RID) {
	off := leafRIDOffset[K](i)
	writeInt32(n.pg, off, int32(rid.PageID))
	writeInt32(n.pg, off+4, int32(rid.SlotNum))
	n.pg.MarkDirty(true)
}

func (n *LeafPage[K]) allKeys() []K {
	size := n.GetSize()
	keys := make([]K, size)
	for i := 0; i < size; i++ {
		keys[i] = n.KeyAt(i)
	}
	return keys
}

func (n *LeafPage[K]) allRIDs() []RID {
	size := n.GetSize()
	rids := make([]RID, size)
	for i := 0; i < size; i++ {
		rids[i] = n.RIDAt(i)
	}
	return rids
}

func (n *LeafPage[K]) setAll(keys []K, rids []RID) {
	for i, k := range keys {
		n.setKeyAt(i, k)
	}
	for i, r := range rids {
		n.setRIDAt(i, r)
	}
	n.setSize(len(keys))
}

// Lookup finds the RID associated with key, reporting whether it was
// present.
func (n *LeafPage[K]) Lookup(key K) (RID, bool) {
	keys := n.allKeys()
	idx, found := search.Binary(key, keys)
	if !found {
		return RID{}, false
	}
	return n.RIDAt(int(idx)), true
}

// Insert adds a key/RID pair in sorted position. It reports false if the
// key is already present (and leaves the leaf unmodified) or the leaf is
// full.
func (n *LeafPage[K]) Insert(key K, rid RID) bool {
	if n.IsFull() {
		return false
	}

	keys := n.allKeys()
	rids := n.allRIDs()

	idx, found := search.Binary(key, keys)
	if found {
		return false
	}

	keys = append(keys, *new(K))
	rids = append(rids, RID{})
	util.ShiftRight(keys, idx, uint(len(keys)-1))
	util.ShiftRight(rids, idx, uint(len(rids)-1))
	keys[idx] = key
	rids[idx] = rid

	n.setAll(keys, rids)
	return true
}

// RemoveAndDeleteRecord deletes the entry for key if present, returning the
// leaf's resulting size.
func (n *LeafPage[K]) RemoveAndDeleteRecord(key K) int {
	keys := n.allKeys()
	rids := n.allRIDs()

	idx, found := search.Binary(key, keys)
	if !found {
		return n.GetSize()
	}

	util.ShiftLeft(keys, idx+1, uint(len(keys)))
	util.ShiftLeft(rids, idx+1, uint(len(rids)))
	keys = keys[:len(keys)-1]
	rids = rids[:len(rids)-1]

	n.setAll(keys, rids)
	return n.GetSize()
}

// MoveHalfTo splits this (full) leaf, moving its upper half to recipient
// and linking recipient after this leaf. Returns the first moved key,
// which becomes the separator in the parent.
func (n *LeafPage[K]) MoveHalfTo(recipient *LeafPage[K]) K {
	keys := n.allKeys()
	rids := n.allRIDs()

	mid := len(keys) / 2
	movedKeys := append([]K(nil), keys[mid:]...)
	movedRIDs := append([]RID(nil), rids[mid:]...)

	recipient.setAll(movedKeys, movedRIDs)
	recipient.SetNextPageID(n.GetNextPageID())
	n.SetNextPageID(recipient.pg.ID())

	n.setAll(keys[:mid], rids[:mid])

	return movedKeys[0]
}

// MoveAllTo merges this leaf's entries onto the end of recipient and
// unlinks this leaf from the leaf chain, used when two underflowing
// sibling leaves are coalesced.
func (n *LeafPage[K]) MoveAllTo(recipient *LeafPage[K]) {
	keys := append(recipient.allKeys(), n.allKeys()...)
	rids := append(recipient.allRIDs(), n.allRIDs()...)
	recipient.setAll(keys, rids)
	recipient.SetNextPageID(n.GetNextPageID())
	n.setSize(0)
}

// MoveFirstToEndOf moves this leaf's first entry to the end of recipient,
// used to redistribute from a right sibling with entries to spare. Returns
// the new first key of this leaf, the updated separator for the parent.
func (n *LeafPage[K]) MoveFirstToEndOf(recipient *LeafPage[K]) (newFirstKey K) {
	keys := n.allKeys()
	rids := n.allRIDs()

	recipient.setKeyAt(recipient.GetSize(), keys[0])
	recipient.setRIDAt(recipient.GetSize(), rids[0])
	recipient.setSize(recipient.GetSize() + 1)

	util.ShiftLeft(keys, 1, uint(len(keys)))
	util.ShiftLeft(rids, 1, uint(len(rids)))
	n.setAll(keys[:len(keys)-1], rids[:len(rids)-1])

	return n.KeyAt(0)
}

// MoveLastToFrontOf moves this leaf's last entry to the front of
// recipient, used to redistribute from a left sibling with entries to
// spare. Returns the moved key, the new separator for the parent.
func (n *LeafPage[K]) MoveLastToFrontOf(recipient *LeafPage[K]) (movedKey K) {
	keys := n.allKeys()
	rids := n.allRIDs()
	last := len(keys) - 1

	movedKey = keys[last]
	rKeys := append([]K{keys[last]}, recipient.allKeys()...)
	rRIDs := append([]RID{rids[last]}, recipient.allRIDs()...)
	recipient.setAll(rKeys, rRIDs)

	n.setAll(keys[:last], rids[:last])

	return movedKey
}
