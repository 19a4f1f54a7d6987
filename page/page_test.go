package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPage_PinUnpinTracksCount(t *testing.T) {
	p := &Page{}
	p.Reset(1)

	assert.Equal(t, uint32(0), p.PinCount())
	p.Pin()
	p.Pin()
	assert.Equal(t, uint32(2), p.PinCount())
	p.Unpin()
	assert.Equal(t, uint32(1), p.PinCount())
}

func TestPage_UnpinFlooredAtZero(t *testing.T) {
	p := &Page{}
	p.Reset(1)
	p.Unpin()
	assert.Equal(t, uint32(0), p.PinCount())
}

func TestPage_MarkDirtyOrsInFlag(t *testing.T) {
	p := &Page{}
	p.Reset(1)

	p.MarkDirty(false)
	assert.False(t, p.IsDirty())

	p.MarkDirty(true)
	assert.True(t, p.IsDirty())

	p.MarkDirty(false)
	assert.True(t, p.IsDirty(), "MarkDirty(false) must not clear an already-dirty page")

	p.ClearDirty()
	assert.False(t, p.IsDirty())
}

func TestPage_ResetClearsPayloadAndBookkeeping(t *testing.T) {
	p := &Page{}
	p.Reset(1)
	p.Pin()
	p.MarkDirty(true)
	p.Data[0] = 0xFF

	p.Reset(2)

	assert.Equal(t, PageID(2), p.ID())
	assert.Equal(t, uint32(0), p.PinCount())
	assert.False(t, p.IsDirty())
	assert.Equal(t, byte(0), p.Data[0])
}

func TestPageID_HashIsDeterministicAndDistinguishesIDs(t *testing.T) {
	assert.Equal(t, PageID(5).Hash(), PageID(5).Hash())
	assert.NotEqual(t, PageID(5).Hash(), PageID(6).Hash())
}

func TestFrameID_HashIsDeterministicAndDistinguishesIDs(t *testing.T) {
	assert.Equal(t, FrameID(5).Hash(), FrameID(5).Hash())
	assert.NotEqual(t, FrameID(5).Hash(), FrameID(6).Hash())
}
