package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimEmpty(t *testing.T) {
	r := NewLRUReplacer[hashableInt]()

	_, ok := r.Victim()
	assert.False(t, ok)
}

func TestLRUReplacer_VictimReturnsLeastRecentlyUnpinned(t *testing.T) {
	r := NewLRUReplacer[hashableInt]()

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	v, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, hashableInt(1), v)
	assert.Equal(t, 2, r.Size())
}

func TestLRUReplacer_PinRemovesCandidacy(t *testing.T) {
	r := NewLRUReplacer[hashableInt]()

	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	assert.Equal(t, 1, r.Size())

	v, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, hashableInt(2), v)
}

func TestLRUReplacer_UnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer[hashableInt]()

	r.Unpin(1)
	r.Unpin(1)
	assert.Equal(t, 1, r.Size())
}

func TestLFUReplacer_VictimEmpty(t *testing.T) {
	r := NewLFUReplacer[hashableInt]()

	_, ok := r.Victim()
	assert.False(t, ok)
}

func TestLFUReplacer_VictimPrefersLeastFrequentlyUsed(t *testing.T) {
	r := NewLFUReplacer[hashableInt]()

	r.Unpin(1)
	r.Unpin(2)
	// Frame 1 is unpinned again, without an intervening eviction, so its
	// frequency is now higher than frame 2's.
	r.Unpin(1)

	v, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, hashableInt(2), v)
}

func TestLFUReplacer_TieBrokenByRecency(t *testing.T) {
	r := NewLFUReplacer[hashableInt]()

	r.Unpin(1)
	r.Unpin(2)

	v, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, hashableInt(1), v)
}

func TestLFUReplacer_PinRemovesCandidacy(t *testing.T) {
	r := NewLFUReplacer[hashableInt]()

	r.Unpin(1)
	r.Pin(1)
	assert.Equal(t, 0, r.Size())
}
