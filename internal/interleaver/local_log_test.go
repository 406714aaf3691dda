package interleaver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLogJoinsSlotsAndBatches(t *testing.T) {
	l := NewLocalLog()
	// Slot 0 names queue 1, slot 1 names queue 0.
	l.AddSlot(0, 1)
	l.AddSlot(1, 0)
	assert.False(t, l.HasNextBatch(), "neither queue has a batch yet")

	l.AddBatchId(1, 0, 100) // queue 1's first batch is id 100
	require.True(t, l.HasNextBatch())
	sb := l.NextBatch()
	assert.Equal(t, SlotBatch{Slot: 0, BatchID: 100}, sb)
	assert.False(t, l.HasNextBatch(), "slot 1 still stalled on queue 0")

	l.AddBatchId(0, 0, 200) // queue 0's first batch is id 200
	require.True(t, l.HasNextBatch())
	assert.Equal(t, SlotBatch{Slot: 1, BatchID: 200}, l.NextBatch())
}

func TestLocalLogOrderIndependentOfArrivalOrder(t *testing.T) {
	build := func(addSlotsFirst bool) []SlotBatch {
		l := NewLocalLog()
		addSlots := func() {
			l.AddSlot(0, 0)
			l.AddSlot(1, 1)
			l.AddSlot(2, 0)
		}
		addBatches := func() {
			l.AddBatchId(0, 0, 10)
			l.AddBatchId(1, 0, 20)
			l.AddBatchId(0, 1, 11)
		}
		if addSlotsFirst {
			addSlots()
			addBatches()
		} else {
			addBatches()
			addSlots()
		}
		var out []SlotBatch
		for l.HasNextBatch() {
			out = append(out, l.NextBatch())
		}
		return out
	}

	assert.Equal(t, build(true), build(false))
}
