package interleaver

import (
	"testing"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	orders   []message.ForwardBatchOrder
	ordersTo []uint32
	emitted  []*txn.Transaction
}

func (f *fakeTransport) SendBatchOrder(toReplica uint32, order message.ForwardBatchOrder) {
	f.orders = append(f.orders, order)
	f.ordersTo = append(f.ordersTo, toReplica)
}

func (f *fakeTransport) ForwardTxn(t *txn.Transaction) {
	f.emitted = append(f.emitted, t)
}

func twoReplicaConfig(local uint32) *config.Configuration {
	cfg := config.Default()
	cfg.NumReplicas = 2
	cfg.LocalReplica = local
	return cfg
}

func TestInterleaverEmitsLocalSingleHomeBatch(t *testing.T) {
	transport := &fakeTransport{}
	it := New(twoReplicaConfig(0), transport)

	t1 := &txn.Transaction{ID: 1}
	batch := &txn.Batch{ID: 55, TransactionType: txn.SingleHome, Transactions: []*txn.Transaction{t1}}

	it.HandleForwardBatchData(0, message.ForwardBatchData{Batch: batch, SameOriginPosition: 0})
	it.HandleLocalQueueOrder(message.LocalQueueOrder{Slot: 0, QueueID: 0})

	require.Len(t, transport.emitted, 1)
	assert.Same(t, t1, transport.emitted[0])
	require.Len(t, transport.orders, 1)
	assert.Equal(t, uint32(1), transport.ordersTo[0], "local discovery must broadcast to the other replica")
	assert.Equal(t, message.ForwardBatchOrder{BatchID: 55, Slot: 0}, transport.orders[0])
}

func TestInterleaverJoinsRemoteBatchOrderAgainstForwardedBody(t *testing.T) {
	transport := &fakeTransport{}
	it := New(twoReplicaConfig(0), transport)

	remoteTxn := &txn.Transaction{ID: 9}
	remoteBatch := &txn.Batch{ID: 300, TransactionType: txn.SingleHome, Transactions: []*txn.Transaction{remoteTxn}}
	remoteMachine := it.cfg.MakeMachineIdNum(1, 0)

	it.HandleForwardBatchData(remoteMachine, message.ForwardBatchData{Batch: remoteBatch})
	assert.Empty(t, transport.emitted, "body without its slot must not be emitted yet")

	it.HandleForwardBatchOrder(remoteMachine, message.ForwardBatchOrder{BatchID: 300, Slot: 0})
	require.Len(t, transport.emitted, 1)
	assert.Same(t, remoteTxn, transport.emitted[0])
}

func TestInterleaverMultiHomeNeedsNoSlotAnnouncement(t *testing.T) {
	transport := &fakeTransport{}
	it := New(twoReplicaConfig(0), transport)

	mhTxn := &txn.Transaction{ID: 3, Type: txn.MultiHome}
	mhBatch := &txn.Batch{ID: 17, TransactionType: txn.MultiHome, Transactions: []*txn.Transaction{mhTxn}}
	it.HandleForwardBatchData(it.cfg.LocalMachineId(), message.ForwardBatchData{Batch: mhBatch})

	require.Len(t, transport.emitted, 1)
	assert.Same(t, mhTxn, transport.emitted[0])
	assert.Empty(t, transport.orders, "multi-home batches never go through LocalLog/BatchOrder broadcast")
}
