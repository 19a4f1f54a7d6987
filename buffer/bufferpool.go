// Package buffer implements the buffer pool manager: a fixed-size cache of
// disk pages, backed by a free list and a Replacer eviction policy, indexed
// by a hash.ExtendibleHash page table. Grounded on kv/bufferpool.go, with
// its map-based page table replaced by hash.ExtendibleHash and its
// CacheEviction interface replaced by replacer.Replacer, per this module's
// component design.
package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relicore/storage-engine/disk"
	"github.com/relicore/storage-engine/hash"
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/replacer"
	"github.com/relicore/storage-engine/storageerr"
)

// Pool is a fixed-size cache of disk.Manager pages. Pages are fetched by
// id, pinned while in use by a caller, and unpinned (optionally dirty) when
// the caller is done. A page is only eligible for eviction once its pin
// count drops to zero.
//
// mu is the pool's outermost coarse-grained lock: every exported method
// takes it for its entire body, so the compound victim-selection ->
// write-back -> table-remove -> table-insert -> read-in sequence inside
// getFrame/NewPage/FetchPage is atomic. Callers (notably bptree, which
// takes only a tree-wide lock of its own) rely on this lock for frame
// safety rather than locking pages themselves.
type Pool struct {
	mu         sync.Mutex
	disk       disk.Manager
	frames     []*page.Page
	pageTable  *hash.ExtendibleHash[page.PageID, page.FrameID]
	replacer   replacer.Replacer[page.FrameID]
	freeFrames []page.FrameID
}

// NewPool creates a Pool with size frames, backed by d and evicting
// unpinned frames according to policy.
func NewPool(size uint, d disk.Manager, policy replacer.Replacer[page.FrameID]) *Pool {
	free := make([]page.FrameID, size)
	for i := range free {
		free[i] = page.FrameID(i)
	}

	return &Pool{
		disk:       d,
		frames:     make([]*page.Page, size),
		pageTable:  hash.New[page.PageID, page.FrameID](hash.DefaultBucketSize),
		replacer:   policy,
		freeFrames: free,
	}
}

// NewPage allocates a fresh page on disk, caches it in a frame pinned once,
// and returns it. Takes the pool lock for its entire body, so
// victim-selection, write-back, table-remove, table-insert, and the pin
// itself are one atomic sequence.
func (p *Pool) NewPage() (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fh := p.getFrame()
	if fh.err != nil {
		return nil, fmt.Errorf("buffer pool: getting frame: %w", fh.err)
	}

	fh.allocate()
	if fh.err != nil {
		return nil, fmt.Errorf("buffer pool: allocating page: %w", fh.err)
	}

	fh.page.Pin()
	p.pageTable.Insert(fh.page.ID(), fh.frameID)
	p.frames[fh.frameID] = fh.page

	return fh.page, nil
}

// FetchPage returns the page with the given id, pinning it once more. It is
// read from the cache if present, or from disk otherwise. Takes the pool
// lock for its entire body: the cache-hit check, any eviction it takes to
// make room on a miss, and the pin are one atomic sequence, so a
// concurrent caller can never observe the frame mid-eviction.
func (p *Pool) FetchPage(id page.PageID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameID, ok := p.pageTable.Find(id); ok {
		pg := p.frames[frameID]
		pg.Pin()
		p.replacer.Pin(frameID)
		return pg, nil
	}

	fh := p.getFrame()
	if fh.err != nil {
		return nil, fh.err
	}

	fh.read(id)
	if fh.err != nil {
		return nil, fh.err
	}

	fh.page.Pin()
	p.pageTable.Insert(id, fh.frameID)
	p.frames[fh.frameID] = fh.page

	return fh.page, nil
}

// FlushPage writes the page with the given id to disk, regardless of
// whether it is dirty, and clears its dirty flag.
func (p *Pool) FlushPage(id page.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushPageLocked(id)
}

// flushPageLocked is FlushPage's body, callable by other methods that
// already hold mu.
func (p *Pool) flushPageLocked(id page.PageID) error {
	frameID, ok := p.pageTable.Find(id)
	if !ok {
		return storageerr.ErrPageNotFound
	}
	return p.flushFrame(frameID)
}

func (p *Pool) flushFrame(frameID page.FrameID) error {
	pg := p.frames[frameID]
	wasDirty := pg.IsDirty()
	pg.ClearDirty()

	if err := p.disk.WritePage(pg); err != nil {
		pg.MarkDirty(wasDirty)
		return err
	}
	return nil
}

// FlushAllPages writes every cached page to disk, joining any individual
// page's flush error into a single returned error.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushAllPagesLocked()
}

// flushAllPagesLocked is FlushAllPages's body, callable by other methods
// that already hold mu.
func (p *Pool) flushAllPagesLocked() error {
	var errs []error
	for _, id := range p.pageTable.Keys() {
		if err := p.flushPageLocked(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes every cached page and closes the underlying disk manager.
// Once Close returns, the Pool must not be used again.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.flushAllPagesLocked(); err != nil {
		return fmt.Errorf("buffer pool: flushing pages on close: %w", err)
	}
	if err := p.disk.Close(); err != nil {
		return fmt.Errorf("buffer pool: closing disk: %w", err)
	}
	return nil
}

// DeletePage removes the page with the given id from the pool and frees its
// slot on disk. It fails if the page is still pinned.
func (p *Pool) DeletePage(id page.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable.Find(id)
	if ok {
		pg := p.frames[frameID]
		if pg.PinCount() > 0 {
			return storageerr.ErrPagePinned
		}

		p.pageTable.Remove(id)
		p.replacer.Pin(frameID)
		p.frames[frameID] = nil
		p.freeFrames = append(p.freeFrames, frameID)
	}

	p.disk.DeallocatePage(id)
	return nil
}

// UnpinPage decrements the page's pin count, OR-ing isDirty into its dirty
// flag. Once the pin count reaches zero the frame becomes eligible for
// eviction. A no-op if the page isn't currently cached.
func (p *Pool) UnpinPage(id page.PageID, isDirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable.Find(id)
	if !ok {
		return
	}

	pg := p.frames[frameID]
	pg.Unpin()
	pg.MarkDirty(isDirty)

	if pg.PinCount() == 0 {
		p.replacer.Unpin(frameID)
	}
}

// frameHelper centralizes the "get a free or evicted frame, roll the
// eviction candidacy back on any failure" logic that both NewPage and
// FetchPage need. Grounded on kv/bufferpool.go's FrameHelper.
type frameHelper struct {
	pool      *Pool
	frameID   page.FrameID
	page      *page.Page
	err       error
	isEvicted bool
}

// getFrame returns a frame either from the free list or by evicting one via
// the replacer, flushing it first if it was dirty.
func (p *Pool) getFrame() frameHelper {
	var frameID page.FrameID
	isEvicted := false

	if len(p.freeFrames) > 0 {
		frameID = p.freeFrames[0]
		p.freeFrames = p.freeFrames[1:]
	} else {
		var ok bool
		frameID, ok = p.replacer.Victim()
		if !ok {
			return frameHelper{pool: p, err: storageerr.ErrOutOfFrames}
		}
		isEvicted = true
	}

	if isEvicted {
		evicted := p.frames[frameID]
		if evicted != nil {
			if evicted.IsDirty() {
				evicted.ClearDirty()
				if err := p.disk.WritePage(evicted); err != nil {
					evicted.MarkDirty(true)
					p.replacer.Unpin(frameID)
					return frameHelper{pool: p, frameID: frameID, err: err, isEvicted: true}
				}
			}
			p.pageTable.Remove(evicted.ID())
		}
	}

	return frameHelper{pool: p, frameID: frameID, isEvicted: isEvicted}
}

func (f *frameHelper) allocate() {
	f.page, f.err = f.pool.disk.AllocatePage()
	f.rollBackOnErr()
}

func (f *frameHelper) read(id page.PageID) {
	f.page, f.err = f.pool.disk.ReadPage(id)
	f.rollBackOnErr()
}

func (f *frameHelper) rollBackOnErr() {
	if f.err != nil && f.isEvicted {
		f.pool.replacer.Unpin(f.frameID)
	}
}
