// Package header implements the HeaderPage collaborator a BPlusTree needs:
// a small disk-resident directory mapping a tree's name to the page id of
// its root, so many named trees can share one buffer pool and one backing
// store. Generalizes kv/btree.go's single-tree tree.meta file (one root
// page id) into a single reserved page holding many (name -> root id)
// entries.
package header

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/relicore/storage-engine/buffer"
	"github.com/relicore/storage-engine/page"
)

// maxNameLen bounds a tree's name so every directory entry has a fixed
// on-disk size.
const maxNameLen = 28

// entrySize is maxNameLen bytes for the name, plus 4 bytes for the root
// page id.
const entrySize = maxNameLen + 4

// Capacity is the maximum number of named trees a single Header page can
// track: the page payload minus the 4-byte entry count, divided by
// entrySize.
const Capacity = (page.PageDataSize - 4) / entrySize

// Header is the directory of named trees' root page ids, resident in a
// single pinned page of a buffer.Pool.
type Header struct {
	mu   sync.RWMutex
	pool *buffer.Pool
	pg   *page.Page
}

// New allocates a fresh, empty Header page in pool.
func New(pool *buffer.Pool) (*Header, error) {
	pg, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("header: allocating page: %w", err)
	}

	h := &Header{pool: pool, pg: pg}
	h.encode()
	pg.MarkDirty(true)
	return h, nil
}

// Open loads an existing Header from the page with the given id.
func Open(pool *buffer.Pool, id page.PageID) (*Header, error) {
	pg, err := pool.FetchPage(id)
	if err != nil {
		return nil, fmt.Errorf("header: fetching page %d: %w", id, err)
	}
	return &Header{pool: pool, pg: pg}, nil
}

// PageID returns the page id this Header is resident in, so callers can
// persist it as the single bootstrap value needed to reopen the store.
func (h *Header) PageID() page.PageID {
	return h.pg.ID()
}

// GetRootPageID looks up the root page id of the named tree.
func (h *Header) GetRootPageID(name string) (page.PageID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := binary.BigEndian.Uint32(h.pg.Data[0:4])
	for i := uint32(0); i < count; i++ {
		entryName, id := h.decodeEntry(i)
		if entryName == name {
			return id, true
		}
	}
	return page.InvalidPageID, false
}

// SetRootPageID records the root page id for the named tree, adding a new
// directory entry if the tree hasn't been seen before.
func (h *Header) SetRootPageID(name string, id page.PageID) error {
	if len(name) > maxNameLen {
		return fmt.Errorf("header: tree name %q exceeds %d bytes", name, maxNameLen)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	count := binary.BigEndian.Uint32(h.pg.Data[0:4])
	for i := uint32(0); i < count; i++ {
		entryName, _ := h.decodeEntry(i)
		if entryName == name {
			h.encodeEntry(i, name, id)
			h.pg.MarkDirty(true)
			return nil
		}
	}

	if count >= Capacity {
		return fmt.Errorf("header: directory full, at most %d trees supported", Capacity)
	}

	h.encodeEntry(count, name, id)
	binary.BigEndian.PutUint32(h.pg.Data[0:4], count+1)
	h.pg.MarkDirty(true)
	return nil
}

// Names returns every tree name currently tracked.
func (h *Header) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := binary.BigEndian.Uint32(h.pg.Data[0:4])
	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		name, _ := h.decodeEntry(i)
		names = append(names, name)
	}
	return names
}

// Flush persists the header page to disk via the buffer pool.
func (h *Header) Flush() error {
	return h.pool.FlushPage(h.pg.ID())
}

func (h *Header) encode() {
	binary.BigEndian.PutUint32(h.pg.Data[0:4], 0)
}

func (h *Header) entryOffset(i uint32) int {
	return 4 + int(i)*entrySize
}

func (h *Header) encodeEntry(i uint32, name string, id page.PageID) {
	off := h.entryOffset(i)
	var nameBuf [maxNameLen]byte
	copy(nameBuf[:], name)
	copy(h.pg.Data[off:off+maxNameLen], nameBuf[:])
	binary.BigEndian.PutUint32(h.pg.Data[off+maxNameLen:off+entrySize], uint32(id))
}

func (h *Header) decodeEntry(i uint32) (string, page.PageID) {
	off := h.entryOffset(i)
	nameBuf := h.pg.Data[off : off+maxNameLen]
	end := 0
	for end < len(nameBuf) && nameBuf[end] != 0 {
		end++
	}
	name := string(nameBuf[:end])
	id := page.PageID(binary.BigEndian.Uint32(h.pg.Data[off+maxNameLen : off+entrySize]))
	return name, id
}
