package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/relicore/storage-engine/page"
)

// pageFile represents a single file on disk containing multiple pages.
//
// pageFile must be initialized before it can be written to or read from; see
// Initialize. Adapted from kv/pagefile.go.
type pageFile struct {
	// path is the page file's location on disk.
	path string
	// capacity is the total number of pages this file can fit.
	capacity uint32
	// pageCount is the number of pages currently stored in this file.
	pageCount uint32
	// pageLocations is the byte offset at which the page with the given id
	// starts in the file.
	pageLocations map[page.PageID]uint32
}

// Initialize loads the page file's metadata from disk if it already exists,
// or creates and persists fresh metadata otherwise.
func (pf *pageFile) Initialize() error {
	size := pf.metaDataSize()
	if size > page.PageSize {
		return fmt.Errorf("disk: page file metadata (%dB) does not fit in page (%dB)", size, page.PageSize)
	}

	exists, err := pf.exists()
	if err != nil {
		return err
	}
	if exists {
		return pf.loadMetaData()
	}

	pf.pageLocations = make(map[page.PageID]uint32)
	return pf.storeMetaData()
}

// Full reports whether this file has no more room for pages.
func (pf *pageFile) Full() bool {
	return pf.pageCount == pf.capacity
}

// DeallocatePage removes the page with the given id from this file's
// metadata and zeros its on-disk slot.
func (pf *pageFile) DeallocatePage(id page.PageID) error {
	offset, exist := pf.pageLocations[id]
	if !exist {
		return fmt.Errorf("disk: no page with id %d in this page file", id)
	}

	file, err := os.OpenFile(pf.path, os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("disk: opening page file: %w", err)
	}
	defer file.Close()

	emptyPage := make([]byte, page.PageDataSize)
	if _, err := file.WriteAt(emptyPage, int64(offset)); err != nil {
		return fmt.Errorf("disk: zeroing deallocated page: %w", err)
	}

	delete(pf.pageLocations, id)
	pf.pageCount--
	return pf.storeMetaData()
}

// WritePage writes the page's payload to its slot in the file, allocating a
// new slot if this is the first time this page id is seen here.
func (pf *pageFile) WritePage(p *page.Page) error {
	var offset uint32
	metaDataDirty := false

	if existing, exist := pf.pageLocations[p.ID()]; exist {
		offset = existing
	} else {
		var err error
		offset, err = pf.findEmptyOffset()
		if err != nil {
			return err
		}
		metaDataDirty = true
		pf.pageLocations[p.ID()] = offset
		pf.pageCount++
	}

	data := make([]byte, page.PageSize)

	// Four bytes of checksum, then the page payload.
	checksum := crc32.ChecksumIEEE(p.Data[:])
	binary.BigEndian.PutUint32(data[0:4], checksum)
	copy(data[4:page.PageDataSize+4], p.Data[:])

	file, err := os.OpenFile(pf.path, os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("disk: opening page file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("disk: writing page: %w", err)
	}

	if metaDataDirty {
		return pf.storeMetaData()
	}
	return nil
}

// ReadPage reads the page with the given id from the file, verifying its
// checksum.
func (pf *pageFile) ReadPage(id page.PageID) (*page.Page, error) {
	offset, exist := pf.pageLocations[id]
	if !exist {
		return nil, fmt.Errorf("disk: no page with id %d in this page file", id)
	}

	file, err := os.Open(pf.path)
	if err != nil {
		return nil, fmt.Errorf("disk: opening page file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, page.PageSize)
	if _, err := file.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("disk: reading page: %w", err)
	}

	checksum := binary.BigEndian.Uint32(buf[0:4])
	var payload [page.PageDataSize]byte
	copy(payload[:], buf[4:4+page.PageDataSize])

	newChecksum := crc32.ChecksumIEEE(payload[:])
	if newChecksum != checksum {
		return nil, fmt.Errorf("disk: checksum mismatch for page %d: stored %x, computed %x", id, checksum, newChecksum)
	}

	p := &page.Page{}
	p.Reset(id)
	p.Data = payload
	return p, nil
}

// findEmptyOffset finds the first unused page-sized offset in the file.
func (pf *pageFile) findEmptyOffset() (uint32, error) {
	if pf.Full() {
		return 0, fmt.Errorf("disk: no space left in this page file")
	}

	occupied := make(map[uint32]bool, len(pf.pageLocations))
	for _, v := range pf.pageLocations {
		occupied[v] = true
	}

	// The first page-sized slot is reserved for this file's own metadata.
	for i := uint32(page.PageSize); i <= pf.capacity*page.PageSize; i += page.PageSize {
		if !occupied[i] {
			return i, nil
		}
	}

	panic(fmt.Sprintf("disk: findEmptyOffset: unreachable, page locations: %+v", pf.pageLocations))
}

func (pf *pageFile) metaDataSize() int {
	// 4 bytes capacity + 4 bytes page count + capacity*(4+4) map entries + 4 bytes CRC.
	return int(4 + 4 + pf.capacity*(4+4) + 4)
}

func (pf *pageFile) encodeMetaData() []byte {
	data := make([]byte, page.PageSize)

	if len(pf.pageLocations) != int(pf.pageCount) {
		panic(fmt.Sprintf("disk: page file metadata inconsistent: %d locations, pageCount %d", len(pf.pageLocations), pf.pageCount))
	}

	binary.BigEndian.PutUint32(data[0:4], pf.capacity)
	binary.BigEndian.PutUint32(data[4:8], pf.pageCount)

	i := 0
	const mapStart = 8
	for k, v := range pf.pageLocations {
		keyStart := mapStart + i*8
		valueStart := keyStart + 4
		binary.BigEndian.PutUint32(data[keyStart:keyStart+4], uint32(k))
		binary.BigEndian.PutUint32(data[valueStart:valueStart+4], v)
		i++
	}

	checksum := crc32.ChecksumIEEE(data[:page.PageSize-4])
	binary.BigEndian.PutUint32(data[page.PageSize-4:], checksum)

	return data
}

func (pf *pageFile) loadMetaData() error {
	file, err := os.Open(pf.path)
	if err != nil {
		return fmt.Errorf("disk: opening page file: %w", err)
	}
	defer file.Close()

	data := make([]byte, page.PageSize)
	if _, err := file.ReadAt(data, 0); err != nil {
		return fmt.Errorf("disk: reading page file metadata: %w", err)
	}

	return pf.decodeMetaData(data)
}

func (pf *pageFile) storeMetaData() error {
	file, err := os.OpenFile(pf.path, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("disk: opening page file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteAt(pf.encodeMetaData(), 0); err != nil {
		return fmt.Errorf("disk: writing page file metadata: %w", err)
	}
	return nil
}

func (pf *pageFile) decodeMetaData(data []byte) error {
	if len(data) < pf.metaDataSize() {
		return fmt.Errorf("disk: metadata had invalid size: %d (expected %d)", len(data), pf.metaDataSize())
	}

	checksum := binary.BigEndian.Uint32(data[len(data)-4:])
	data = data[:len(data)-4]

	newChecksum := crc32.ChecksumIEEE(data)
	if newChecksum != checksum {
		return fmt.Errorf("disk: checksum mismatch in page file metadata: stored %x, computed %x", checksum, newChecksum)
	}

	capacity := binary.BigEndian.Uint32(data[0:4])
	pageCount := binary.BigEndian.Uint32(data[4:8])

	locations := make(map[page.PageID]uint32, pageCount)
	const mapStart = 8
	for i := 0; i < int(pageCount); i++ {
		keyStart := mapStart + i*8
		valueStart := keyStart + 4
		id := page.PageID(binary.BigEndian.Uint32(data[keyStart : keyStart+4]))
		offset := binary.BigEndian.Uint32(data[valueStart : valueStart+4])
		locations[id] = offset
	}

	pf.capacity = capacity
	pf.pageCount = pageCount
	pf.pageLocations = locations

	return nil
}

func (pf *pageFile) exists() (bool, error) {
	file, err := os.Open(pf.path)
	if err == nil {
		file.Close()
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("disk: checking existence of %s: %w", pf.path, err)
}
