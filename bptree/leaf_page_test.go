package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicore/storage-engine/page"
)

func newLeafTestPage(t *testing.T, id page.PageID, parent page.PageID) *LeafPage[int32] {
	t.Helper()
	pg := &page.Page{}
	pg.Reset(id)
	return InitLeafPage[int32](pg, parent)
}

func TestLeafPage_InsertKeepsSortedOrder(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)

	require.True(t, n.Insert(30, RID{PageID: 1, SlotNum: 0}))
	require.True(t, n.Insert(10, RID{PageID: 1, SlotNum: 1}))
	require.True(t, n.Insert(20, RID{PageID: 1, SlotNum: 2}))

	require.Equal(t, 3, n.GetSize())
	assert.Equal(t, int32(10), n.KeyAt(0))
	assert.Equal(t, int32(20), n.KeyAt(1))
	assert.Equal(t, int32(30), n.KeyAt(2))
}

func TestLeafPage_InsertRejectsDuplicate(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)
	require.True(t, n.Insert(10, RID{PageID: 1, SlotNum: 0}))

	assert.False(t, n.Insert(10, RID{PageID: 2, SlotNum: 0}))
	assert.Equal(t, 1, n.GetSize())
}

func TestLeafPage_InsertRejectsWhenFull(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)
	max := n.GetMaxSize()
	for i := 0; i < max; i++ {
		require.True(t, n.Insert(int32(i), RID{PageID: page.PageID(i)}))
	}

	assert.True(t, n.IsFull())
	assert.False(t, n.Insert(int32(max), RID{PageID: 999}))
}

func TestLeafPage_Lookup(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)
	require.True(t, n.Insert(10, RID{PageID: 5, SlotNum: 1}))
	require.True(t, n.Insert(20, RID{PageID: 5, SlotNum: 2}))

	rid, ok := n.Lookup(20)
	require.True(t, ok)
	assert.Equal(t, RID{PageID: 5, SlotNum: 2}, rid)

	_, ok = n.Lookup(99)
	assert.False(t, ok)
}

func TestLeafPage_RemoveAndDeleteRecord(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)
	require.True(t, n.Insert(10, RID{PageID: 1}))
	require.True(t, n.Insert(20, RID{PageID: 2}))
	require.True(t, n.Insert(30, RID{PageID: 3}))

	size := n.RemoveAndDeleteRecord(20)

	assert.Equal(t, 2, size)
	_, ok := n.Lookup(20)
	assert.False(t, ok)
	assert.Equal(t, int32(10), n.KeyAt(0))
	assert.Equal(t, int32(30), n.KeyAt(1))
}

func TestLeafPage_MoveHalfToLinksLeafChain(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)
	max := n.GetMaxSize()
	for i := 0; i < max; i++ {
		require.True(t, n.Insert(int32(i), RID{PageID: page.PageID(i)}))
	}

	sibling := newLeafTestPage(t, 2, page.InvalidPageID)
	midKey := n.MoveHalfTo(sibling)

	assert.Equal(t, max, n.GetSize()+sibling.GetSize())
	assert.Equal(t, midKey, sibling.KeyAt(0))
	assert.Equal(t, page.PageID(2), n.GetNextPageID())
}

func TestLeafPage_MoveAllToUnlinksAndEmpties(t *testing.T) {
	left := newLeafTestPage(t, 1, page.InvalidPageID)
	require.True(t, left.Insert(10, RID{PageID: 1}))

	right := newLeafTestPage(t, 2, page.InvalidPageID)
	require.True(t, right.Insert(20, RID{PageID: 2}))
	right.SetNextPageID(99)

	right.MoveAllTo(left)

	assert.Equal(t, 2, left.GetSize())
	assert.Equal(t, page.PageID(99), left.GetNextPageID())
	assert.Equal(t, 0, right.GetSize())
}

func TestLeafPage_MoveFirstToEndOfAndMoveLastToFrontOf(t *testing.T) {
	left := newLeafTestPage(t, 1, page.InvalidPageID)
	require.True(t, left.Insert(10, RID{PageID: 1}))

	right := newLeafTestPage(t, 2, page.InvalidPageID)
	require.True(t, right.Insert(20, RID{PageID: 2}))
	require.True(t, right.Insert(30, RID{PageID: 3}))

	newFirst := right.MoveFirstToEndOf(left)
	assert.Equal(t, int32(30), newFirst)
	assert.Equal(t, 2, left.GetSize())
	assert.Equal(t, int32(20), left.KeyAt(1))

	movedKey := left.MoveLastToFrontOf(right)
	assert.Equal(t, int32(20), movedKey)
	assert.Equal(t, int32(20), right.KeyAt(0))
}

func TestLeafPage_IsUnderflow(t *testing.T) {
	n := newLeafTestPage(t, 1, page.InvalidPageID)
	assert.True(t, n.IsUnderflow())

	for i := 0; i < (n.GetMaxSize()+1)/2; i++ {
		require.True(t, n.Insert(int32(i), RID{PageID: page.PageID(i)}))
	}
	assert.False(t, n.IsUnderflow())
}
