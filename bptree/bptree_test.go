package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicore/storage-engine/buffer"
	"github.com/relicore/storage-engine/disk"
	"github.com/relicore/storage-engine/header"
	"github.com/relicore/storage-engine/page"
	"github.com/relicore/storage-engine/replacer"
	"github.com/relicore/storage-engine/storageerr"
)

func newTestTree(t *testing.T, poolSize uint) *BPlusTree[int32] {
	t.Helper()
	pool := buffer.NewPool(poolSize, disk.NewRAMDisk(4096), replacer.NewLRUReplacer[page.FrameID]())
	hdr, err := header.New(pool)
	require.NoError(t, err)

	tree, err := New[int32]("widgets", pool, hdr)
	require.NoError(t, err)
	return tree
}

func TestBPlusTree_InsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 32)

	require.NoError(t, tree.Insert(1, RID{PageID: 1, SlotNum: 0}))
	require.NoError(t, tree.Insert(2, RID{PageID: 1, SlotNum: 1}))

	rid, err := tree.GetValue(2)
	require.NoError(t, err)
	assert.Equal(t, RID{PageID: 1, SlotNum: 1}, rid)
}

func TestBPlusTree_GetValueMissingKey(t *testing.T) {
	tree := newTestTree(t, 32)
	require.NoError(t, tree.Insert(1, RID{PageID: 1}))

	_, err := tree.GetValue(999)
	assert.ErrorIs(t, err, storageerr.ErrKeyNotFound)
}

func TestBPlusTree_InsertDuplicateKeyFails(t *testing.T) {
	tree := newTestTree(t, 32)
	require.NoError(t, tree.Insert(1, RID{PageID: 1}))

	err := tree.Insert(1, RID{PageID: 2})
	assert.ErrorIs(t, err, storageerr.ErrKeyExists)
}

func TestBPlusTree_InsertManyKeysTriggersLeafSplit(t *testing.T) {
	tree := newTestTree(t, 64)

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert(int32(i), RID{PageID: page.PageID(i), SlotNum: uint32(i)}))
	}

	for i := 0; i < n; i++ {
		rid, err := tree.GetValue(int32(i))
		require.NoError(t, err, "key %d", i)
		assert.Equal(t, page.PageID(i), rid.PageID)
	}
}

func TestBPlusTree_RangeScanReturnsEverythingInOrder(t *testing.T) {
	tree := newTestTree(t, 64)

	const n = 300
	for i := n - 1; i >= 0; i-- {
		require.NoError(t, tree.Insert(int32(i), RID{PageID: page.PageID(i)}))
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var seen []int32
	for it.Valid() {
		seen = append(seen, it.Key())
		require.NoError(t, it.Next())
	}

	require.Len(t, seen, n)
	for i, k := range seen {
		assert.Equal(t, int32(i), k)
	}
}

func TestBPlusTree_SeekStartsAtOrAfterKey(t *testing.T) {
	tree := newTestTree(t, 64)
	for _, k := range []int32{10, 20, 30, 40, 50} {
		require.NoError(t, tree.Insert(k, RID{PageID: page.PageID(k)}))
	}

	it, err := tree.Seek(25)
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Valid())
	assert.Equal(t, int32(30), it.Key())
}

func TestBPlusTree_RemoveMissingKeyFails(t *testing.T) {
	tree := newTestTree(t, 32)
	err := tree.Remove(42)
	assert.ErrorIs(t, err, storageerr.ErrKeyNotFound)
}

func TestBPlusTree_InsertRemoveGetValueRoundTrip(t *testing.T) {
	tree := newTestTree(t, 32)
	require.NoError(t, tree.Insert(1, RID{PageID: 1}))
	require.NoError(t, tree.Insert(2, RID{PageID: 2}))

	require.NoError(t, tree.Remove(1))

	_, err := tree.GetValue(1)
	assert.ErrorIs(t, err, storageerr.ErrKeyNotFound)

	rid, err := tree.GetValue(2)
	require.NoError(t, err)
	assert.Equal(t, page.PageID(2), rid.PageID)
}

func TestBPlusTree_InsertThenRemoveAllKeysLeavesEmptyTree(t *testing.T) {
	tree := newTestTree(t, 64)

	const n = 400
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert(int32(i), RID{PageID: page.PageID(i)}))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Remove(int32(i)), "removing key %d", i)
	}

	assert.True(t, tree.IsEmpty())
	for i := 0; i < n; i++ {
		_, err := tree.GetValue(int32(i))
		assert.ErrorIs(t, err, storageerr.ErrKeyNotFound)
	}
}

func TestBPlusTree_RemoveInterleavedWithInsertPreservesRemainingKeys(t *testing.T) {
	tree := newTestTree(t, 64)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert(int32(i), RID{PageID: page.PageID(i)}))
	}
	for i := 0; i < n; i += 2 {
		require.NoError(t, tree.Remove(int32(i)))
	}

	for i := 0; i < n; i++ {
		rid, err := tree.GetValue(int32(i))
		if i%2 == 0 {
			assert.ErrorIs(t, err, storageerr.ErrKeyNotFound)
		} else {
			require.NoError(t, err)
			assert.Equal(t, page.PageID(i), rid.PageID)
		}
	}
}

func TestBPlusTree_ReopenSharesRootAcrossInstances(t *testing.T) {
	pool := buffer.NewPool(32, disk.NewRAMDisk(4096), replacer.NewLRUReplacer[page.FrameID]())
	hdr, err := header.New(pool)
	require.NoError(t, err)

	first, err := New[int32]("widgets", pool, hdr)
	require.NoError(t, err)
	require.NoError(t, first.Insert(7, RID{PageID: 7}))

	second, err := New[int32]("widgets", pool, hdr)
	require.NoError(t, err)

	rid, err := second.GetValue(7)
	require.NoError(t, err)
	assert.Equal(t, page.PageID(7), rid.PageID)
}
