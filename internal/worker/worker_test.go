package worker_test

import (
	"testing"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/abadid/SLOG/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	replies   []message.WorkerResponse
	completed []message.CompletedSubtxn
}

func (r *recordingTransport) SendRemoteRead(uint32, message.RemoteReadResult) {}
func (r *recordingTransport) Reply(resp message.WorkerResponse) {
	r.replies = append(r.replies, resp)
}
func (r *recordingTransport) ForwardCompleted(sub message.CompletedSubtxn) {
	r.completed = append(r.completed, sub)
}

func TestWorkerExecutesLocalOnlyTransaction(t *testing.T) {
	cfg := config.Default()
	store := storage.NewMemStorage()
	transport := &recordingTransport{}
	w := worker.New(0, cfg, store, transport)

	tx := &txn.Transaction{ID: 1, WriteSet: map[string][]byte{"x": []byte("v")}}
	holder := txn.NewTransactionHolder(tx, cfg.LocalPartition, cfg.NumPartitions)

	w.Execute(holder)

	require.Len(t, transport.replies, 1)
	assert.Equal(t, uint64(1), transport.replies[0].TxnID)
	require.Len(t, transport.completed, 1)
	assert.Equal(t, txn.StatusCommitted, transport.completed[0].Txn.Status)

	rec, ok := store.Get("x")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), rec.Value)
}

// TestWorkerIgnoresWillAbortOnDispatchedTransaction documents the invariant
// spec.md §4.6 states explicitly: a dispatched transaction can no longer be
// pre-dispatch aborted. A will_abort observed before this point is the
// Scheduler's exclusive responsibility (HandleRemoteReadResult ->
// triggerAbort, before dispatch ever happens); a worker only ever sees
// normal remote reads and always runs the stored procedure.
func TestWorkerIgnoresWillAbortOnDispatchedTransaction(t *testing.T) {
	cfg := config.Default()
	store := storage.NewMemStorage()
	transport := &recordingTransport{}
	w := worker.New(0, cfg, store, transport)

	tx := &txn.Transaction{ID: 1, WriteSet: map[string][]byte{"local-key": []byte("v")}}
	holder := txn.NewTransactionHolder(tx, cfg.LocalPartition, cfg.NumPartitions)
	holder.PushEarlyRemoteRead(message.RemoteReadResult{TxnID: 1, WillAbort: true}, 0)

	w.Execute(holder)

	require.Len(t, transport.completed, 1)
	assert.Equal(t, txn.StatusCommitted, transport.completed[0].Txn.Status)

	rec, ok := store.Get("local-key")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), rec.Value)
}
