package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intKey lets ExtendibleHash be exercised with plain ints in tests, using
// the same fnv1a-style mixing the page package uses for PageID/FrameID.
type intKey int

func (k intKey) Hash() uint64 {
	const (
		offset64 = 1469598103934665603
		prime64  = 1099511628211
	)
	x := uint64(k)
	h := uint64(offset64)
	for i := 0; i < 8; i++ {
		h ^= x & 0xff
		h *= prime64
		x >>= 8
	}
	return h
}

func TestExtendibleHash_FindMissing(t *testing.T) {
	h := New[intKey, string](2)

	_, ok := h.Find(intKey(1))
	assert.False(t, ok)
}

func TestExtendibleHash_InsertAndFind(t *testing.T) {
	h := New[intKey, string](2)

	h.Insert(intKey(1), "one")
	h.Insert(intKey(2), "two")

	v, ok := h.Find(intKey(1))
	require.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok = h.Find(intKey(2))
	require.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestExtendibleHash_OverwriteExistingKey(t *testing.T) {
	h := New[intKey, string](2)

	h.Insert(intKey(1), "one")
	h.Insert(intKey(1), "uno")

	v, ok := h.Find(intKey(1))
	require.True(t, ok)
	assert.Equal(t, "uno", v)
	assert.Equal(t, 1, h.Len())
}

func TestExtendibleHash_SplitGrowsDirectoryWhenNeeded(t *testing.T) {
	h := New[intKey, int](2)

	startDepth := h.GetGlobalDepth()

	for i := 0; i < 200; i++ {
		h.Insert(intKey(i), i)
	}

	assert.Greater(t, h.GetGlobalDepth(), startDepth)
	assert.Equal(t, 200, h.Len())

	for i := 0; i < 200; i++ {
		v, ok := h.Find(intKey(i))
		require.True(t, ok, "key %d should be found after splits", i)
		assert.Equal(t, i, v)
	}
}

func TestExtendibleHash_RemoveThenFindMisses(t *testing.T) {
	h := New[intKey, string](2)
	h.Insert(intKey(5), "five")

	assert.True(t, h.Remove(intKey(5)))
	assert.False(t, h.Remove(intKey(5)))

	_, ok := h.Find(intKey(5))
	assert.False(t, ok)
}

func TestExtendibleHash_LocalDepthNeverExceedsGlobalDepth(t *testing.T) {
	h := New[intKey, int](2)

	for i := 0; i < 64; i++ {
		h.Insert(intKey(i), i)
	}

	global := h.GetGlobalDepth()
	for i := 0; i < (1 << uint(global)); i++ {
		local, err := h.GetLocalDepth(i)
		require.NoError(t, err)
		assert.LessOrEqual(t, local, global)
	}
}

func TestExtendibleHash_GetLocalDepthOutOfRange(t *testing.T) {
	h := New[intKey, int](2)

	_, err := h.GetLocalDepth(1 << 20)
	assert.Error(t, err)
}

func TestExtendibleHash_KeysCoversEveryInsertedKey(t *testing.T) {
	h := New[intKey, int](2)
	want := map[intKey]bool{}
	for i := 0; i < 50; i++ {
		h.Insert(intKey(i), i)
		want[intKey(i)] = true
	}

	got := h.Keys()
	assert.Len(t, got, 50)
	for _, k := range got {
		assert.True(t, want[k])
	}
}
