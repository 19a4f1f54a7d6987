package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicore/storage-engine/bptree"
	"github.com/relicore/storage-engine/page"
)

func TestEngine_OpenInMemoryPutGet(t *testing.T) {
	e, err := Open(Config{})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("widgets", 1, bptree.RID{PageID: 1, SlotNum: 0}))

	rid, err := e.Get("widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rid.SlotNum)
}

func TestEngine_MultipleNamedTreesAreIndependent(t *testing.T) {
	e, err := Open(Config{})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("widgets", 1, bptree.RID{PageID: 1}))
	require.NoError(t, e.Put("orders", 1, bptree.RID{PageID: 2}))

	widget, err := e.Get("widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), int32(widget.PageID))

	order, err := e.Get("orders", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), int32(order.PageID))

	assert.ElementsMatch(t, []string{"widgets", "orders"}, e.Trees())
}

func TestEngine_DeleteThenGetReturnsNotFound(t *testing.T) {
	e, err := Open(Config{})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("widgets", 1, bptree.RID{PageID: 1}))
	require.NoError(t, e.Delete("widgets", 1))

	_, err = e.Get("widgets", 1)
	assert.Error(t, err)
}

func TestEngine_ScanReturnsAscendingKeys(t *testing.T) {
	e, err := Open(Config{})
	require.NoError(t, err)
	defer e.Close()

	for _, k := range []Key{5, 1, 3, 2, 4} {
		require.NoError(t, e.Put("widgets", k, bptree.RID{PageID: page.PageID(k)}))
	}

	rids, keys, err := e.Scan("widgets")
	require.NoError(t, err)
	require.Len(t, keys, 5)
	for i, k := range keys {
		assert.Equal(t, Key(i+1), k)
		assert.Equal(t, int32(i+1), int32(rids[i].PageID))
	}
}

func TestEngine_ReopenPersistentStoreRetainsData(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(Config{WorkingDirectory: dir})
	require.NoError(t, err)
	require.NoError(t, e.Put("widgets", 42, bptree.RID{PageID: 7, SlotNum: 3}))
	require.NoError(t, e.Close())

	reopened, err := Open(Config{WorkingDirectory: dir})
	require.NoError(t, err)
	defer reopened.Close()

	rid, err := reopened.Get("widgets", 42)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), rid.SlotNum)
}

func TestEngine_LFUPolicyOpensAndOperates(t *testing.T) {
	e, err := Open(Config{Policy: LFUPolicy, PoolSize: 8})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("widgets", 1, bptree.RID{PageID: 1}))
	rid, err := e.Get("widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), int32(rid.PageID))
}
