package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicore/storage-engine/disk"
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/replacer"
)

func newTestPool(size uint) *Pool {
	return NewPool(size, disk.NewRAMDisk(64), replacer.NewLRUReplacer[page.FrameID]())
}

func TestPool_NewPageThenFetch(t *testing.T) {
	p := newTestPool(4)

	pg, err := p.NewPage()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pg.PinCount())

	fetched, err := p.FetchPage(pg.ID())
	require.NoError(t, err)
	assert.Same(t, pg, fetched)
	assert.Equal(t, uint32(2), fetched.PinCount())
}

func TestPool_UnpinMarksDirty(t *testing.T) {
	p := newTestPool(4)

	pg, err := p.NewPage()
	require.NoError(t, err)

	p.UnpinPage(pg.ID(), true)
	assert.True(t, pg.IsDirty())
	assert.Equal(t, uint32(0), pg.PinCount())
}

func TestPool_EvictsUnpinnedFrameWhenFull(t *testing.T) {
	p := newTestPool(2)

	p1, _ := p.NewPage()
	p2, _ := p.NewPage()
	p.UnpinPage(p1.ID(), false)

	// Pool is full of pinned+unpinned pages but p1 is evictable.
	p3, err := p.NewPage()
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID(), p2.ID())
	assert.NotEqual(t, p1.ID(), p3.ID())
}

func TestPool_OutOfFramesWhenAllPinned(t *testing.T) {
	p := newTestPool(1)

	_, err := p.NewPage()
	require.NoError(t, err)

	_, err = p.NewPage()
	assert.Error(t, err)
}

func TestPool_DeletePageFailsWhilePinned(t *testing.T) {
	p := newTestPool(2)

	pg, err := p.NewPage()
	require.NoError(t, err)

	err = p.DeletePage(pg.ID())
	assert.Error(t, err)
}

func TestPool_DeletePageSucceedsAfterUnpin(t *testing.T) {
	p := newTestPool(2)

	pg, err := p.NewPage()
	require.NoError(t, err)
	p.UnpinPage(pg.ID(), false)

	require.NoError(t, p.DeletePage(pg.ID()))

	_, err = p.FetchPage(pg.ID())
	assert.Error(t, err)
}

func TestPool_FlushPageWritesToDisk(t *testing.T) {
	d := disk.NewRAMDisk(8)
	p := NewPool(4, d, replacer.NewLRUReplacer[page.FrameID]())

	pg, err := p.NewPage()
	require.NoError(t, err)
	pg.Data[0] = 99
	p.UnpinPage(pg.ID(), true)

	require.NoError(t, p.FlushPage(pg.ID()))
	assert.False(t, pg.IsDirty())

	onDisk, err := d.ReadPage(pg.ID())
	require.NoError(t, err)
	assert.Equal(t, byte(99), onDisk.Data[0])
}

func TestPool_CloseFlushesAndClosesDisk(t *testing.T) {
	p := newTestPool(2)

	pg, err := p.NewPage()
	require.NoError(t, err)
	p.UnpinPage(pg.ID(), true)

	assert.NoError(t, p.Close())
}
