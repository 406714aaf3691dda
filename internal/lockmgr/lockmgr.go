// Package lockmgr implements the per-key FIFO lock table the Scheduler
// consults before dispatching a transaction to a worker, generalizing
// kv/transaction/latches.go's exclusive-only latch table (one waiter wakes
// the next) into shared-read/exclusive-write mode tracking, per spec.md
// §4.5.
package lockmgr

import (
	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/metrics"
)

// Mode is the access mode a transaction requests a key in.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Result is the outcome of AcquireLocks for one transaction.
type Result int

const (
	// ResultAcquired means every requested key was granted immediately.
	ResultAcquired Result = iota
	// ResultWaiting means at least one requested key is queued behind an
	// incompatible holder; the caller is not runnable yet.
	ResultWaiting
	// ResultAbort means the transaction was already marked as aborting
	// when it reached the lock table and was dropped instead of queued.
	ResultAbort
)

type request struct {
	txnID uint64
	mode  Mode
}

// keyState is one key's current holders and FIFO wait queue. Multiple
// concurrent read holders are tracked in granted; a write holder is always
// alone in granted.
type keyState struct {
	granted []request
	waiting []request
}

func (k *keyState) compatibleWithGranted(mode Mode) bool {
	if len(k.granted) == 0 {
		return true
	}
	if mode == ModeRead {
		return k.granted[0].mode == ModeRead
	}
	return false
}

// LockManager grants or queues per-key lock requests in FIFO order and
// tracks, per multi-home transaction, whether every expected shard has
// registered before its locks are attempted.
type LockManager struct {
	table map[string]*keyState

	// mhShardsExpected/mhShardsSeen track AcceptTransaction's multi-home
	// completeness check: a MULTI_HOME transaction's locks are only
	// attempted once every region's LOCK_ONLY shard (plus the coordinating
	// shard itself) has been accepted.
	mhShardsExpected map[uint64]int
	mhShardsSeen     map[uint64]int

	sizeLimit int
}

func New(cfg *config.Configuration) *LockManager {
	return &LockManager{
		table:            make(map[string]*keyState),
		mhShardsExpected: make(map[uint64]int),
		mhShardsSeen:     make(map[uint64]int),
		sizeLimit:        config.LockTableSizeLimit,
	}
}

// AcceptTransaction registers that one more shard of a multi-home
// transaction has arrived, given the total number of shards it expects
// (InvolvedReplicas count). It reports whether every shard has now arrived,
// meaning AcquireLocks may be attempted.
func (lm *LockManager) AcceptTransaction(txnID uint64, totalShards int) (complete bool) {
	lm.mhShardsExpected[txnID] = totalShards
	lm.mhShardsSeen[txnID]++
	return lm.mhShardsSeen[txnID] >= totalShards
}

// ForgetTransaction drops a transaction's multi-home shard bookkeeping once
// it is dispatched or aborted.
func (lm *LockManager) ForgetTransaction(txnID uint64) {
	delete(lm.mhShardsExpected, txnID)
	delete(lm.mhShardsSeen, txnID)
}

func (lm *LockManager) keyStateFor(key string) *keyState {
	k, ok := lm.table[key]
	if !ok {
		k = &keyState{}
		lm.table[key] = k
		metrics.LockManagerKeysTracked.Set(float64(len(lm.table)))
	}
	return k
}

// AcquireLocks attempts to grant txnID every key in keys (mode indicates
// read or write). It is all-or-nothing: if any key cannot be granted
// immediately, none are, and every key is instead appended to its wait
// queue so a later ReleaseLocks call can wake txnID once all are reachable.
//
// aborting, when true, causes AcquireLocks to report ResultAbort and queue
// nothing, mirroring the Scheduler's pre-dispatch abort check (spec.md
// §4.6): a transaction already marked ABORTING must never occupy a wait
// queue slot another transaction could be blocked behind.
func (lm *LockManager) AcquireLocks(txnID uint64, keys map[string]Mode, aborting bool) Result {
	if aborting {
		return ResultAbort
	}
	if len(lm.table) >= lm.sizeLimit {
		// Over capacity: the transaction must wait for the table to drain
		// rather than add a new key, per spec.md §4.5's size cap.
		return ResultWaiting
	}

	allGranted := true
	for key := range keys {
		ks := lm.keyStateFor(key)
		if len(ks.waiting) > 0 || !ks.compatibleWithGranted(keys[key]) {
			allGranted = false
			break
		}
	}
	if allGranted {
		for key, mode := range keys {
			ks := lm.keyStateFor(key)
			ks.granted = append(ks.granted, request{txnID: txnID, mode: mode})
		}
		return ResultAcquired
	}

	queueLen := 0
	for key, mode := range keys {
		ks := lm.keyStateFor(key)
		ks.waiting = append(ks.waiting, request{txnID: txnID, mode: mode})
		if len(ks.waiting) > queueLen {
			queueLen = len(ks.waiting)
		}
	}
	metrics.LockManagerWaitQueueLen.Observe(float64(queueLen))
	return ResultWaiting
}

// ReleaseLocks releases every key txnID holds or is waiting on, promoting
// newly-compatible waiters to granted in FIFO order and returning the set of
// transaction ids that became fully granted as a result (the Scheduler
// dispatches each of these next).
func (lm *LockManager) ReleaseLocks(txnID uint64, keys []string) []uint64 {
	touched := make(map[uint64]bool)

	for _, key := range keys {
		ks, ok := lm.table[key]
		if !ok {
			continue
		}
		ks.granted = removeTxn(ks.granted, txnID)
		ks.waiting = removeTxn(ks.waiting, txnID)

		lm.promote(key, ks, touched)

		if len(ks.granted) == 0 && len(ks.waiting) == 0 {
			delete(lm.table, key)
		}
	}
	metrics.LockManagerKeysTracked.Set(float64(len(lm.table)))

	var ready []uint64
	for id := range touched {
		if lm.isFullyGranted(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// promote moves waiters at the front of key's queue into granted as long as
// they're compatible with what's already granted, recording every
// transaction id it touches in touched so the caller can re-check whether
// each one is now fully granted across all of its keys.
func (lm *LockManager) promote(key string, ks *keyState, touched map[uint64]bool) {
	for len(ks.waiting) > 0 {
		next := ks.waiting[0]
		if !ks.compatibleWithGranted(next.mode) {
			break
		}
		ks.waiting = ks.waiting[1:]
		ks.granted = append(ks.granted, next)
		touched[next.txnID] = true
	}
}

// isFullyGranted reports whether txnID appears in no wait queue anywhere in
// the table. It is O(table size); callers only invoke it for ids that
// ReleaseLocks just touched, which in practice is a small set.
func (lm *LockManager) isFullyGranted(txnID uint64) bool {
	for _, ks := range lm.table {
		for _, r := range ks.waiting {
			if r.txnID == txnID {
				return false
			}
		}
	}
	return true
}

func removeTxn(reqs []request, txnID uint64) []request {
	out := reqs[:0]
	for _, r := range reqs {
		if r.txnID != txnID {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarizes the lock table's current size for the Scheduler's
// StatsResponse.
type Stats struct {
	KeysTracked int `json:"keys_tracked"`
}

func (lm *LockManager) StatsSnapshot() Stats {
	return Stats{KeysTracked: len(lm.table)}
}
