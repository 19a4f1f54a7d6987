package disk

import (
	"fmt"

	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/storageerr"
)

// RAMDisk is an in-memory stand-in for a backing file, used by tests and by
// callers that don't need persistence across process restarts. Adapted from
// kv/ram_disk.go.
type RAMDisk struct {
	maxPages    uint
	nextPageID  page.PageID
	deallocated []page.PageID
	pages       map[page.PageID]*page.Page
}

// NewRAMDisk creates a RAMDisk capable of holding up to maxPages pages.
func NewRAMDisk(maxPages uint) *RAMDisk {
	return &RAMDisk{
		maxPages: maxPages,
		pages:    make(map[page.PageID]*page.Page),
	}
}

func (r *RAMDisk) AllocatePage() (*page.Page, error) {
	var id page.PageID
	if len(r.deallocated) > 0 {
		id = r.deallocated[0]
		r.deallocated = r.deallocated[1:]
	} else if uint(r.nextPageID) >= r.maxPages {
		return nil, fmt.Errorf("ram disk: capacity %d exhausted", r.maxPages)
	} else {
		id = r.nextPageID
		r.nextPageID++
	}

	p := &page.Page{}
	p.Reset(id)
	r.pages[id] = p

	return p, nil
}

func (r *RAMDisk) DeallocatePage(id page.PageID) {
	if _, ok := r.pages[id]; !ok {
		return
	}
	delete(r.pages, id)
	if id < r.nextPageID {
		r.deallocated = append(r.deallocated, id)
	}
}

func (r *RAMDisk) ReadPage(id page.PageID) (*page.Page, error) {
	p, ok := r.pages[id]
	if !ok {
		return nil, storageerr.ErrPageNotFound
	}
	return p, nil
}

func (r *RAMDisk) WritePage(p *page.Page) error {
	r.pages[p.ID()] = p
	return nil
}

// Occupied reports the number of currently allocated pages.
func (r *RAMDisk) Occupied() uint { return uint(len(r.pages)) }

// Capacity reports the maximum number of pages this disk can hold.
func (r *RAMDisk) Capacity() uint { return r.maxPages }

// Close is a no-op: a RAMDisk has nothing to persist.
func (r *RAMDisk) Close() error { return nil }
