package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/relicore/storage-engine/page"
)

// metaDataFile is the name of the file used to persist a PersistentDisk's
// own bookkeeping (as opposed to a pageFile's bookkeeping).
const metaDataFile = "disk.meta"

// pageFilePattern is the printf-compatible pattern used to name the backing
// page files a PersistentDisk spreads its pages across.
const pageFilePattern = "disk.pages.%d"

// pagesPerFile bounds how many pages are grouped into a single backing
// file. The upper limit follows from requiring a page file's own metadata
// (its page id -> offset table) to fit in a single page.
const pagesPerFile = (page.PageSize - 12) / 8

// PersistentDisk persists pages across many fixed-capacity files on disk,
// grouping pages into files by id range. Adapted from kv/persistent_disk.go.
//
// Known limitations carried over from the teacher design: once page ids are
// recycled, sequential pages from a caller's perspective are no longer
// sequential on disk, and deallocated ids are tracked fully in memory.
type PersistentDisk struct {
	directory          string
	nextPageID         page.PageID
	deallocatedPageIDs []page.PageID
}

// NewPersistentDisk opens (or initializes) a PersistentDisk rooted at
// directory. If directory already contains a disk's metadata, that disk's
// state is loaded; otherwise a fresh, empty disk is created there.
func NewPersistentDisk(directory string) (*PersistentDisk, error) {
	d := &PersistentDisk{
		directory:          directory,
		deallocatedPageIDs: make([]page.PageID, 0),
	}

	err := d.initialize()
	return d, err
}

func (d *PersistentDisk) initialize() error {
	file, err := os.Open(d.metaFilePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return d.storeMetaData()
		}
		return fmt.Errorf("disk: checking metadata file: %w", err)
	}
	file.Close()
	return d.loadMetaData()
}

// AllocatePage reserves a page id, reusing the earliest-deallocated id if
// there is one and the next never-used id otherwise, and writes its (empty)
// contents to disk so the backing file for it is guaranteed to exist.
func (d *PersistentDisk) AllocatePage() (*page.Page, error) {
	var id page.PageID
	if len(d.deallocatedPageIDs) == 0 {
		id = d.nextPageID
		d.nextPageID++
	} else {
		id = d.deallocatedPageIDs[0]
		d.deallocatedPageIDs = d.deallocatedPageIDs[1:]
	}

	p := &page.Page{}
	p.Reset(id)

	if err := d.WritePage(p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeallocatePage frees id for reuse. Deallocating an id that was never
// allocated, or one whose underlying IO fails, is a silent no-op: the id
// simply stays un-recycled.
func (d *PersistentDisk) DeallocatePage(id page.PageID) {
	pf, err := d.pageFile(id)
	if err != nil {
		return
	}
	if err := pf.DeallocatePage(id); err != nil {
		return
	}
	d.deallocatedPageIDs = append(d.deallocatedPageIDs, id)
}

// ReadPage reads the page with the given id from its backing file.
func (d *PersistentDisk) ReadPage(id page.PageID) (*page.Page, error) {
	pf, err := d.pageFile(id)
	if err != nil {
		return nil, err
	}
	return pf.ReadPage(id)
}

// WritePage persists p to its backing file. p must have been allocated via
// AllocatePage.
func (d *PersistentDisk) WritePage(p *page.Page) error {
	pf, err := d.pageFile(p.ID())
	if err != nil {
		return err
	}
	return pf.WritePage(p)
}

// Occupied reports the number of currently allocated pages.
func (d *PersistentDisk) Occupied() uint {
	return uint(d.nextPageID) - uint(len(d.deallocatedPageIDs))
}

// Capacity reports the maximum number of pages this disk can ever hold.
func (d *PersistentDisk) Capacity() uint {
	return math.MaxUint32 + 1
}

// Close flushes this disk's own metadata to disk. It is safe to discard the
// PersistentDisk value afterwards, as long as no further page operations are
// issued.
func (d *PersistentDisk) Close() error {
	return d.storeMetaData()
}

func (d *PersistentDisk) loadMetaData() error {
	data, err := os.ReadFile(d.metaFilePath())
	if err != nil {
		return fmt.Errorf("disk: reading metadata: %w", err)
	}
	return d.decodeMetaData(data)
}

func (d *PersistentDisk) storeMetaData() error {
	if err := os.WriteFile(d.metaFilePath(), d.encodeMetaData(), 0660); err != nil {
		return fmt.Errorf("disk: writing metadata: %w", err)
	}
	return nil
}

func (d *PersistentDisk) encodeMetaData() []byte {
	// 4 bytes nextPageID + 8 bytes dealloc count + 4 bytes per dealloc id + 4 bytes checksum.
	length := 4 + 8 + len(d.deallocatedPageIDs)*4 + 4
	data := make([]byte, length)

	binary.BigEndian.PutUint32(data[0:4], uint32(d.nextPageID))
	binary.BigEndian.PutUint64(data[4:12], uint64(len(d.deallocatedPageIDs)))
	for i, id := range d.deallocatedPageIDs {
		binary.BigEndian.PutUint32(data[12+i*4:12+(i+1)*4], uint32(id))
	}

	checksum := crc32.ChecksumIEEE(data[:length-4])
	binary.BigEndian.PutUint32(data[length-4:], checksum)

	return data
}

func (d *PersistentDisk) decodeMetaData(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("disk: metadata too short: %d bytes", len(data))
	}

	checksum := binary.BigEndian.Uint32(data[len(data)-4:])
	data = data[:len(data)-4]

	newChecksum := crc32.ChecksumIEEE(data)
	if newChecksum != checksum {
		return fmt.Errorf("disk: checksum mismatch in disk metadata: stored %x, computed %x", checksum, newChecksum)
	}

	nextPageID := page.PageID(binary.BigEndian.Uint32(data[0:4]))
	deallocCount := binary.BigEndian.Uint64(data[4:12])
	deallocated := make([]page.PageID, deallocCount)
	for i := 0; i < int(deallocCount); i++ {
		deallocated[i] = page.PageID(binary.BigEndian.Uint32(data[12+i*4 : 12+(i+1)*4]))
	}

	d.nextPageID = nextPageID
	d.deallocatedPageIDs = deallocated

	return nil
}

func (d *PersistentDisk) metaFilePath() string {
	return filepath.Join(d.directory, metaDataFile)
}

func (d *PersistentDisk) pageFile(id page.PageID) (*pageFile, error) {
	pf := &pageFile{
		path:     d.pageFilePath(id),
		capacity: pagesPerFile,
	}
	err := pf.Initialize()
	return pf, err
}

func (d *PersistentDisk) pageFilePath(id page.PageID) string {
	fileID := int64(id) / pagesPerFile
	fileName := fmt.Sprintf(pageFilePattern, fileID)
	return filepath.Join(d.directory, fileName)
}
