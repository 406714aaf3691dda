package txn

import (
	"hash/fnv"

	"github.com/abadid/SLOG/internal/message"
)

// KeyPartition maps a key to the partition it is sharded to. Partitioning is
// a storage-layer concern out of scope for this core; a simple, deterministic
// hash is used so the holder's KeysInPartition/InvolvedPartitions
// computation is self-contained and reproducible in tests.
func KeyPartition(key string, numPartitions uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % numPartitions
}

// HashWorker maps a TxnId onto a worker index via FNV-1a rather than a plain
// modulo, per the Design Note in spec.md §9 ("a rewrite should hash first").
func HashWorker(txnID uint64, numWorkers uint32) uint32 {
	h := fnv.New32a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(txnID >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return h.Sum32() % numWorkers
}

// TransactionHolder is the Scheduler's per-transaction state bundle: a
// Transaction plus the partition-local bookkeeping the Scheduler and
// LockManager need, per spec.md §3.
type TransactionHolder struct {
	txn *Transaction

	keysInPartition    map[string]struct{}
	involvedPartitions map[uint32]struct{}
	activePartitions   map[uint32]struct{}
	involvedReplicas   map[uint32]struct{}

	worker    *uint32
	workerSet bool

	earlyRemoteReads []message.RemoteReadResult
}

// NewHolder creates an empty holder, as happens when an early remote read or
// a not-yet-arrived lock-only shard needs a map entry before the
// transaction body itself has arrived.
func NewHolder() *TransactionHolder {
	return &TransactionHolder{
		keysInPartition:    make(map[string]struct{}),
		involvedPartitions: make(map[uint32]struct{}),
		activePartitions:   make(map[uint32]struct{}),
		involvedReplicas:   make(map[uint32]struct{}),
	}
}

// NewTransactionHolder wraps t, computing its partition-local key set and
// the partition/replica sets derived from t's full read/write sets. The
// caller's localPartition/numPartitions determine membership.
func NewTransactionHolder(t *Transaction, localPartition, numPartitions uint32) *TransactionHolder {
	h := NewHolder()
	h.PopulateFromTransaction(t, localPartition, numPartitions)
	return h
}

// PopulateFromTransaction attaches t to the holder and computes its
// partition-local key set and partition/replica sets. Safe to call on a
// holder created via NewHolder once the transaction body arrives.
func (h *TransactionHolder) PopulateFromTransaction(t *Transaction, localPartition, numPartitions uint32) {
	h.txn = t

	addKey := func(key string, isWrite bool) {
		p := KeyPartition(key, numPartitions)
		h.involvedPartitions[p] = struct{}{}
		if isWrite {
			h.activePartitions[p] = struct{}{}
		}
		if p == localPartition {
			h.keysInPartition[key] = struct{}{}
		}
		if md, ok := t.MasterMetadata[key]; ok {
			h.involvedReplicas[md.Master] = struct{}{}
		}
	}
	for k := range t.ReadSet {
		addKey(k, false)
	}
	for k := range t.WriteSet {
		addKey(k, true)
	}
	for _, k := range t.DeleteSet {
		addKey(k, true)
	}
}

// Transaction returns the wrapped Transaction, or nil if one has not arrived
// yet (a pre-dispatch abort or lock-only shard can exist before its body
// does).
func (h *TransactionHolder) Transaction() *Transaction {
	if h == nil {
		return nil
	}
	return h.txn
}

// KeysInPartition is the subset of read/write/delete keys local to this
// partition. Empty means the transaction is dropped at accept.
func (h *TransactionHolder) KeysInPartition() map[string]struct{} {
	return h.keysInPartition
}

// InvolvedPartitions is the union of partitions touched anywhere in the full
// transaction.
func (h *TransactionHolder) InvolvedPartitions() map[uint32]struct{} {
	return h.involvedPartitions
}

// ActivePartitions is the subset of InvolvedPartitions that own at least one
// write.
func (h *TransactionHolder) ActivePartitions() map[uint32]struct{} {
	return h.activePartitions
}

// InvolvedReplicas is the set of regions mastering any key in the full
// transaction.
func (h *TransactionHolder) InvolvedReplicas() map[uint32]struct{} {
	return h.involvedReplicas
}

// Worker returns the assigned worker index and whether one has been
// assigned yet. Once set, a holder's state may only be mutated from the
// worker-reply path (spec.md §3 invariant).
func (h *TransactionHolder) Worker() (uint32, bool) {
	if !h.workerSet {
		return 0, false
	}
	return *h.worker, true
}

// SetWorker assigns a worker index. Must be called at most once per holder.
func (h *TransactionHolder) SetWorker(idx uint32) {
	h.worker = &idx
	h.workerSet = true
}

// EarlyRemoteReads returns the queue of remote reads that arrived before this
// transaction was dispatched (or, in the pre-dispatch abort case, that arrived
// before the transaction's own body did).
func (h *TransactionHolder) EarlyRemoteReads() []message.RemoteReadResult {
	return h.earlyRemoteReads
}

// PushEarlyRemoteRead buffers a remote read that arrived too early, dropping
// the oldest entry if max is reached and max > 0 (Open Question resolution,
// see SPEC_FULL.md §9).
func (h *TransactionHolder) PushEarlyRemoteRead(r message.RemoteReadResult, max int) (dropped bool) {
	if max > 0 && len(h.earlyRemoteReads) >= max {
		h.earlyRemoteReads = h.earlyRemoteReads[1:]
		dropped = true
	}
	h.earlyRemoteReads = append(h.earlyRemoteReads, r)
	return dropped
}

// DrainEarlyRemoteReads empties and returns the buffered reads, in arrival
// order.
func (h *TransactionHolder) DrainEarlyRemoteReads() []message.RemoteReadResult {
	reads := h.earlyRemoteReads
	h.earlyRemoteReads = nil
	return reads
}
