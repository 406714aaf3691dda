package message

import "github.com/abadid/SLOG/internal/txn"

// LocalQueueOrder is the Sequencer's announcement that slot Slot in this
// region's local Paxos log names QueueID's next batch.
type LocalQueueOrder struct {
	Slot    uint64
	QueueID uint32
}

// ForwardBatchData carries a full batch body forwarded from the local
// Sequencer (same-region partitions) or a peer region's Interleaver.
type ForwardBatchData struct {
	Batch *txn.Batch
	// SameOriginPosition orders batches generated by the same machine,
	// independent of when they arrive.
	SameOriginPosition uint32
}

// ForwardBatchOrder replicates a (slot, batch) pairing discovered by a
// peer partition's LocalLog so this partition's SingleHomeLog for that
// peer's region can join it against the batch body.
type ForwardBatchOrder struct {
	BatchID uint64
	Slot    uint64
}

// ForwardTxn is the Interleaver's emission of one ordered transaction to the
// Scheduler.
type ForwardTxn struct {
	Txn *txn.Transaction
}

// RemoteReadResult carries remote-read values for TxnID's keys living on
// another partition, or signals a remote-initiated abort via WillAbort.
type RemoteReadResult struct {
	TxnID     uint64
	Partition uint32
	WillAbort bool
	Reads     map[string][]byte
}

// WorkerDispatch hands a transaction holder to a worker for execution.
type WorkerDispatch struct {
	Holder *txn.TransactionHolder
}

// WorkerResponse is a worker's completion signal back to the Scheduler.
type WorkerResponse struct {
	TxnID uint64
}

// CompletedSubtxn is the Scheduler's reply to the coordinating server once a
// transaction (or its local sub-transaction) has finished or aborted.
type CompletedSubtxn struct {
	Txn                *txn.Transaction
	Partition          uint32
	InvolvedPartitions []uint32
}

// StatsRequest asks the Scheduler to report its current state.
type StatsRequest struct {
	ID    uint64
	Level int
}

// StatsResponse carries the JSON-encoded stats payload back.
type StatsResponse struct {
	ID        uint64
	StatsJSON string
}
