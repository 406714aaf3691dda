package orderedlog

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceBufferInOrderInsert(t *testing.T) {
	b := NewSequenceBuffer[string](0)
	b.Insert(0, "a")
	b.Insert(1, "b")
	require.True(t, b.HasNext())
	assert.Equal(t, Entry[string]{Position: 0, Value: "a"}, b.Next())
	assert.Equal(t, Entry[string]{Position: 1, Value: "b"}, b.Next())
	assert.False(t, b.HasNext())
}

func TestSequenceBufferStallsOnGap(t *testing.T) {
	b := NewSequenceBuffer[string](0)
	b.Insert(1, "b")
	assert.False(t, b.HasNext(), "position 1 must stall until 0 arrives")
	b.Insert(0, "a")
	require.Equal(t, 2, b.Len())
	assert.Equal(t, uint64(0), b.Next().Position)
	assert.Equal(t, uint64(1), b.Next().Position)
}

func TestSequenceBufferDuplicateInsertIgnored(t *testing.T) {
	b := NewSequenceBuffer[string](0)
	b.Insert(0, "a")
	b.Next()
	b.Insert(0, "a-again")
	assert.False(t, b.HasNext(), "re-inserting an already-released position must be a no-op")
}

func TestSequenceBufferOrderIndependentOfInsertionOrder(t *testing.T) {
	const n = 200
	positions := rand.New(rand.NewSource(1)).Perm(n)

	b := NewSequenceBuffer[int](0)
	for _, p := range positions {
		b.Insert(uint64(p), p)
	}

	for i := 0; i < n; i++ {
		require.True(t, b.HasNext())
		e := b.Next()
		assert.Equal(t, uint64(i), e.Position)
		assert.Equal(t, i, e.Value)
	}
	assert.False(t, b.HasNext())
}
