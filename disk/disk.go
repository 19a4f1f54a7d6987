// Package disk implements the DiskManager façade spec.md §6 describes as an
// external collaborator: allocate/deallocate fixed-size page slots in a
// backing file, and read/write whole pages. Everything above this package
// (hash, replacer, buffer, bptree) only ever sees page ids and *page.Page
// values; it never opens a file directly.
package disk

import "github.com/relicore/storage-engine/page"

// MaxPagesOnDisk bounds the in-memory RAMDisk implementation, matching
// kv/disk.go's constant of the same name.
const MaxPagesOnDisk = 1 << 20

// Manager is the DiskManager collaborator: allocate/deallocate page slots,
// and read/write whole pages at a page's offset in the backing store.
type Manager interface {
	// AllocatePage reserves a new page slot and returns its zeroed page.
	// AllocatePage never returns page.InvalidPageID.
	AllocatePage() (*page.Page, error)
	// DeallocatePage frees a previously allocated page slot for reuse.
	DeallocatePage(id page.PageID)
	// ReadPage reads the page with the given id from the backing store.
	ReadPage(id page.PageID) (*page.Page, error)
	// WritePage persists the page's payload to the backing store.
	WritePage(p *page.Page) error
	// Close flushes any manager-level metadata and releases the backing
	// store. No further operations are valid after Close returns.
	Close() error
}
