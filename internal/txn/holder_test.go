package txn_test

import (
	"testing"

	"github.com/abadid/SLOG/internal/message"
	. "github.com/abadid/SLOG/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulateFromTransactionComputesKeysInPartition(t *testing.T) {
	tx := &Transaction{
		ReadSet:   map[string][]byte{"r1": nil},
		WriteSet:  map[string][]byte{"w1": nil},
		DeleteSet: []string{"d1"},
	}
	// numPartitions=1 forces every key local regardless of its hash.
	h := NewTransactionHolder(tx, 0, 1)

	assert.Len(t, h.KeysInPartition(), 3)
	assert.Contains(t, h.KeysInPartition(), "r1")
	assert.Contains(t, h.KeysInPartition(), "w1")
	assert.Contains(t, h.KeysInPartition(), "d1")

	assert.Contains(t, h.ActivePartitions(), uint32(0), "writes and deletes mark their partition active")
	assert.Len(t, h.InvolvedPartitions(), 1)
}

func TestHolderCanExistBeforeTransactionArrives(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Transaction())
	assert.Empty(t, h.KeysInPartition())

	h.PopulateFromTransaction(&Transaction{WriteSet: map[string][]byte{"x": nil}}, 0, 1)
	require.NotNil(t, h.Transaction())
	assert.Contains(t, h.KeysInPartition(), "x")
}

func TestWorkerAssignmentIsSetOnce(t *testing.T) {
	h := NewHolder()
	_, ok := h.Worker()
	assert.False(t, ok)

	h.SetWorker(3)
	idx, ok := h.Worker()
	require.True(t, ok)
	assert.Equal(t, uint32(3), idx)
}

func TestEarlyRemoteReadsDropsOldestWhenFull(t *testing.T) {
	h := NewHolder()
	dropped := h.PushEarlyRemoteRead(message.RemoteReadResult{TxnID: 1}, 2)
	assert.False(t, dropped)
	dropped = h.PushEarlyRemoteRead(message.RemoteReadResult{TxnID: 2}, 2)
	assert.False(t, dropped)
	dropped = h.PushEarlyRemoteRead(message.RemoteReadResult{TxnID: 3}, 2)
	assert.True(t, dropped)

	reads := h.DrainEarlyRemoteReads()
	require.Len(t, reads, 2)
	assert.Equal(t, uint64(2), reads[0].TxnID)
	assert.Equal(t, uint64(3), reads[1].TxnID)

	assert.Empty(t, h.EarlyRemoteReads(), "DrainEarlyRemoteReads must empty the buffer")
}

func TestKeyPartitionIsDeterministic(t *testing.T) {
	a := KeyPartition("some-key", 16)
	b := KeyPartition("some-key", 16)
	assert.Equal(t, a, b)
}

func TestHashWorkerStaysInRange(t *testing.T) {
	for id := uint64(0); id < 100; id++ {
		idx := HashWorker(id, 7)
		assert.Less(t, idx, uint32(7))
	}
}
