// Package bptree implements a disk-resident B+ tree index: InternalPage and
// LeafPage encode/decode their entries directly into a buffer pool page's
// payload, and BPlusTree orchestrates lookups, insertions with splits, and
// deletions with coalesce/redistribute across them.
//
// Grounded on kv/node.go's encode/decode-via-encoding/binary style (kept
// over kv/raw_node.go's unsafe.Pointer aliasing, which doesn't fit a
// generic key type), and on kv/btree.go's traversal and split/merge
// orchestration.
package bptree

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/exp/constraints"

	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/util"
)

// FixedKey is the constraint on keys a BPlusTree can index: any fixed-width
// numeric type, so every key has a known, constant encoded size. Takes the
// place of the external Comparator/serialization collaborator for the
// common case of scalar keys, relying on Go's native ordering operators
// instead of a hand-rolled Compare method.
type FixedKey interface {
	constraints.Integer | constraints.Float
}

// keySize returns the encoded byte width of a FixedKey type K.
func keySize[K FixedKey]() int {
	var k K
	return binary.Size(k)
}

// minOccupancy returns the minimum number of entries a page of the given
// max size must hold before it's considered underflowing: half its max
// size, rounded up, floored at 1 so a degenerately small max size never
// yields a minimum of zero.
func minOccupancy(maxSize int) int {
	return util.Max(1, (maxSize+1)/2)
}

// RID (record id) identifies a record's location outside the index itself:
// the page it lives on, and its slot within that page. A LeafPage maps keys
// to RIDs rather than to arbitrary values, which is what makes it an index
// over externally-stored records instead of a self-contained store.
type RID struct {
	PageID  page.PageID
	SlotNum uint32
}

// pageType tags a page's on-disk encoding as internal or leaf so a decoder
// given only a raw page can tell them apart.
type pageType byte

const (
	invalidPageType  pageType = 0
	internalPageType pageType = 1
	leafPageType     pageType = 2
)

// Common header fields shared by both InternalPage and LeafPage, laid out
// first in every bptree page:
//
//	offset 0:  pageType (1 byte) + 3 bytes padding
//	offset 4:  size        (int32, 4 bytes)
//	offset 8:  maxSize     (int32, 4 bytes)
//	offset 12: parentPageID (int32, 4 bytes)
const (
	offsetPageType     = 0
	offsetSize         = 4
	offsetMaxSize      = 8
	offsetParentPageID = 12
	commonHeaderSize   = 16
)

// LeafPage adds one more header field after the common header: the id of
// the next leaf in key order, forming the leaf-level linked list an
// IndexIterator walks for range scans.
const (
	offsetNextPageID = commonHeaderSize
	leafHeaderSize   = commonHeaderSize + 4
)

func readPageType(pg *page.Page) pageType {
	return pageType(pg.Data[offsetPageType])
}

func writePageType(pg *page.Page, t pageType) {
	pg.Data[offsetPageType] = byte(t)
}

func readInt32(pg *page.Page, offset int) int32 {
	return int32(binary.BigEndian.Uint32(pg.Data[offset : offset+4]))
}

func writeInt32(pg *page.Page, offset int, v int32) {
	binary.BigEndian.PutUint32(pg.Data[offset:offset+4], uint32(v))
}

// IsLeafPage reports whether the given page is encoded as a bptree leaf
// page, vs. an internal page.
func IsLeafPage(pg *page.Page) bool {
	return readPageType(pg) == leafPageType
}

// writeKeyAt encodes key into buf at offset using a fixed-width big-endian
// encoding, relying on encoding/binary.Write's reflection-based support for
// any fixed-size numeric kind rather than an unsafe.Pointer cast.
func writeKeyAt[K FixedKey](buf []byte, offset int, key K) {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, key)
	copy(buf[offset:offset+b.Len()], b.Bytes())
}

// readKeyAt decodes a K previously written by writeKeyAt from buf at
// offset.
func readKeyAt[K FixedKey](buf []byte, offset, size int) K {
	var k K
	_ = binary.Read(bytes.NewReader(buf[offset:offset+size]), binary.BigEndian, &k)
	return k
}
