package scheduler_test

import (
	"testing"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/slogtest"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleHomeWriteCommitsAndIsVisible(t *testing.T) {
	h := slogtest.New(2, config.RemasterProtocolNone)

	h.Submit(&txn.Transaction{
		ID:       1,
		Type:     txn.SingleHome,
		WriteSet: map[string][]byte{"x": []byte("v1")},
	})

	require.Len(t, h.Completed, 1)
	assert.Equal(t, txn.StatusCommitted, h.Completed[0].Txn.Status)

	rec, ok := h.Store.Get("x")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), rec.Value)
}

func TestWritesSerializeThroughLockManager(t *testing.T) {
	h := slogtest.New(4, config.RemasterProtocolNone)

	h.Submit(&txn.Transaction{ID: 1, Type: txn.SingleHome, WriteSet: map[string][]byte{"x": []byte("from-1")}})
	h.Submit(&txn.Transaction{ID: 2, Type: txn.SingleHome, WriteSet: map[string][]byte{"x": []byte("from-2")}})

	require.Len(t, h.Completed, 2)
	for _, c := range h.Completed {
		assert.Equal(t, txn.StatusCommitted, c.Txn.Status)
	}
	rec, ok := h.Store.Get("x")
	require.True(t, ok)
	assert.Equal(t, []byte("from-2"), rec.Value, "txn 2 was submitted after txn 1 committed and released the lock")
}

func TestDeleteRemovesKey(t *testing.T) {
	h := slogtest.New(1, config.RemasterProtocolNone)
	h.Submit(&txn.Transaction{ID: 1, Type: txn.SingleHome, WriteSet: map[string][]byte{"x": []byte("v")}})
	h.Submit(&txn.Transaction{ID: 2, Type: txn.SingleHome, DeleteSet: []string{"x"}})

	_, ok := h.Store.Get("x")
	assert.False(t, ok)
}

func TestCounterlessRemasterAbortsStaleTransaction(t *testing.T) {
	h := slogtest.New(1, config.RemasterProtocolCounterless)
	h.Store.Set("x", storage.Record{Master: txn.MasterMetadata{Master: 1}})

	h.Submit(&txn.Transaction{
		ID:       1,
		Type:     txn.SingleHome,
		WriteSet: map[string][]byte{"x": []byte("v")},
		MasterMetadata: map[string]txn.MasterMetadata{
			"x": {Master: 0}, // stale: storage says master is 1
		},
	})

	require.Len(t, h.Completed, 1)
	assert.Equal(t, txn.StatusAborted, h.Completed[0].Txn.Status)
}
