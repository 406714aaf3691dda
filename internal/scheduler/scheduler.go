// Package scheduler implements the central per-partition coordinator: it
// accepts transactions off the Interleaver's ordered stream, runs them
// through the RemasterManager and LockManager, dispatches runnable ones to
// the worker pool, and drives every in-flight transaction through the
// pre-dispatch abort state machine described in spec.md §4.6. Grounded on
// scheduler.cpp's structure and named, not coincidentally, after the
// teacher's own scheduler/server package (PD): both are the system's single
// stateful decision-making hub, both own a handful of concurrent maps keyed
// by id, both lean on prometheus + zap for visibility into that state.
package scheduler

import (
	"encoding/json"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/lockmgr"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/metrics"
	"github.com/abadid/SLOG/internal/remaster"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// abortState is the pre-dispatch abort state machine state for one
// transaction, per spec.md §4.6. FINALIZED isn't stored as a third value:
// finalizing a transaction erases its entry from abortingTxns entirely, so
// isAborting reports false for it exactly as it would for a never-aborted
// (ALIVE) one.
type abortState int

const (
	stateAborting abortState = iota + 1
)

// Dispatcher is the Scheduler's view of the worker pool.
type Dispatcher interface {
	Route(workerIndex uint32, env message.Envelope)
}

// Transport is the Scheduler's view of the outside world for everything
// that isn't dispatch: replying to the coordinating server, and relaying a
// RemoteReadResult (ordinary or will_abort) to another partition's
// Scheduler, cross-partition, the same way a peer Scheduler relays one to
// this one via HandleRemoteReadResult.
type Transport interface {
	ReplyToCoordinator(sub message.CompletedSubtxn)
	SendRemoteRead(toMachine uint32, result message.RemoteReadResult)
}

// Scheduler owns every in-flight transaction's state for this partition.
type Scheduler struct {
	cfg        *config.Configuration
	store      storage.Storage
	lockmgr    *lockmgr.LockManager
	remasterer remaster.Manager
	dispatcher Dispatcher
	transport  Transport

	allTxns      map[uint64]*txn.TransactionHolder
	lockOnlyTxns map[txn.TxnKey]*txn.TransactionHolder
	abortingTxns map[uint64]abortState
	// mhAbortWaitingOn counts, per MULTI_HOME TxnId currently aborting, the
	// LOCK_ONLY shards not yet observed (arrived-and-erased or pre-decremented
	// at ContinueAbort time), per spec.md §4.6's mh_abort_waiting_on.
	mhAbortWaitingOn map[uint64]int
}

func New(cfg *config.Configuration, store storage.Storage, lm *lockmgr.LockManager, rm remaster.Manager, dispatcher Dispatcher, transport Transport) *Scheduler {
	return &Scheduler{
		cfg:              cfg,
		store:            store,
		lockmgr:          lm,
		remasterer:       rm,
		dispatcher:       dispatcher,
		transport:        transport,
		allTxns:          make(map[uint64]*txn.TransactionHolder),
		lockOnlyTxns:     make(map[txn.TxnKey]*txn.TransactionHolder),
		abortingTxns:     make(map[uint64]abortState),
		mhAbortWaitingOn: make(map[uint64]int),
	}
}

// HandleForwardTxn is the entry point for a transaction the Interleaver just
// emitted in total order: populate the holder, filter keys by local
// partition (dropping if none remain), then route by type (spec.md §4.6's
// Accept).
func (s *Scheduler) HandleForwardTxn(t *txn.Transaction) {
	txn.RecordTxnEvent(t, txn.EventEnterScheduler, s.cfg.LocalMachineId())

	if t.Remaster != nil {
		s.handleRemaster(t)
		return
	}

	if t.Type == txn.LockOnly {
		s.handleLockOnlyArrival(t)
		return
	}

	holder, existing := s.allTxns[t.ID]
	if existing {
		// A RemoteReadResult for this TxnId arrived before the transaction's
		// own body did, leaving a bare placeholder holder in allTxns; fill it
		// in rather than replacing it, so its buffered EarlyRemoteReads and
		// any recorded abort-wait state survive.
		holder.PopulateFromTransaction(t, s.cfg.LocalPartition, s.cfg.NumPartitions)
	} else {
		holder = txn.NewTransactionHolder(t, s.cfg.LocalPartition, s.cfg.NumPartitions)
	}
	if len(holder.KeysInPartition()) == 0 {
		delete(s.allTxns, t.ID)
		return
	}

	s.allTxns[t.ID] = holder
	s.accept(t.ID, holder)
}

// handleLockOnlyArrival processes a LOCK_ONLY shard, keyed by (TxnId,
// Region). If the parent MULTI_HOME is already aborting, the shard is erased
// immediately rather than accepted: spec.md §4.6's "ABORTING (body absent) |
// LockOnly arrives" transition.
func (s *Scheduler) handleLockOnlyArrival(t *txn.Transaction) {
	if s.isAborting(t.ID) {
		s.decrementMHAbortWaiting(t.ID)
		return
	}

	holder := txn.NewTransactionHolder(t, s.cfg.LocalPartition, s.cfg.NumPartitions)
	if len(holder.KeysInPartition()) == 0 {
		return
	}
	s.lockOnlyTxns[txn.TxnKey{TxnID: t.ID, Region: t.Region}] = holder
	s.accept(t.ID, holder)
}

// handleRemaster applies a remaster directive to storage and releases any
// transactions the RemasterManager was holding for it.
func (s *Scheduler) handleRemaster(t *txn.Transaction) {
	rec, _ := s.store.Get(t.Remaster.Key)
	rec.Master = txn.MasterMetadata{Master: t.Remaster.NewMaster, Counter: rec.Master.Counter + 1}
	s.store.Set(t.Remaster.Key, rec)

	if s.remasterer == nil {
		return
	}
	for _, waitingID := range s.remasterer.RemasterOccurred(t.Remaster.Key, t.Remaster.NewMaster) {
		if holder, ok := s.allTxns[waitingID]; ok {
			s.accept(waitingID, holder)
		}
	}
}

// accept runs the Accept -> (remaster check) -> LockManager -> Dispatch
// pipeline for txnID, per spec.md §4.6. A txn already in the ABORTING state
// short-circuits straight to ContinueAbort rather than re-entering the
// remaster/lock pipeline (the "Txn arrives" transition for a deferred
// abort).
func (s *Scheduler) accept(txnID uint64, holder *txn.TransactionHolder) {
	t := holder.Transaction()
	txn.RecordTxnEvent(t, txn.EventAccepted, s.cfg.LocalMachineId())
	metrics.SchedulerTxnsAccepted.Inc()

	if s.isAborting(txnID) {
		s.continueAbort(txnID, holder)
		return
	}

	if t.Type == txn.MultiHome {
		total := len(holder.InvolvedReplicas())
		if total == 0 {
			total = 1
		}
		if !s.lockmgr.AcceptTransaction(txnID, total) {
			return
		}
	}

	if s.remasterer != nil {
		switch s.remasterer.VerifyMaster(t) {
		case remaster.VerdictAbort:
			s.triggerAbort(txnID, holder)
			return
		case remaster.VerdictWait:
			return
		}
	} else if s.cfg.RemasterProtocol == config.RemasterProtocolCounterless {
		for key, md := range t.MasterMetadata {
			if rec, ok := s.store.Get(key); ok && rec.Master.Master != md.Master {
				s.triggerAbort(txnID, holder)
				return
			}
		}
	}

	keys := make(map[string]lockmgr.Mode, len(holder.KeysInPartition()))
	for k := range holder.KeysInPartition() {
		keys[k] = lockmgr.ModeRead
	}
	for k := range t.WriteSet {
		if _, ok := holder.KeysInPartition()[k]; ok {
			keys[k] = lockmgr.ModeWrite
		}
	}
	for _, k := range t.DeleteSet {
		if _, ok := holder.KeysInPartition()[k]; ok {
			keys[k] = lockmgr.ModeWrite
		}
	}

	switch s.lockmgr.AcquireLocks(txnID, keys, false) {
	case lockmgr.ResultAcquired:
		s.dispatch(txnID, holder)
	case lockmgr.ResultAbort:
		s.triggerAbort(txnID, holder)
	case lockmgr.ResultWaiting:
		// Woken later by a ReleaseLocks call naming txnID as newly ready.
	}
}

func (s *Scheduler) isAborting(txnID uint64) bool {
	return s.abortingTxns[txnID] == stateAborting
}

// dispatch hands holder to a worker, chosen by hashing txnID rather than a
// biased modulo (Design Note, SPEC_FULL.md §9), and requires that the
// worker assignment be recorded (holder.SetWorker) strictly before any
// EarlyRemoteReads are drained into it: a remote read arriving between
// dispatch and the worker field being set would otherwise be lost, per the
// TransactionHolder lifecycle invariant in spec.md §3. A txn is only ever
// dispatched from here, never while ABORTING, so the worker never observes
// a pre-dispatch abort (spec.md §4.6's "worker completion forbidden"
// invariant).
func (s *Scheduler) dispatch(txnID uint64, holder *txn.TransactionHolder) {
	t := holder.Transaction()
	idx := txn.HashWorker(txnID, s.cfg.NumWorkers)
	holder.SetWorker(idx)
	txn.RecordTxnEvent(t, txn.EventDispatched, s.cfg.LocalMachineId())
	metrics.SchedulerTxnsDispatched.Inc()

	s.dispatcher.Route(idx, message.Envelope{
		Type:        message.TypeWorkerDispatch,
		FromMachine: s.cfg.LocalMachineId(),
		Payload:     message.WorkerDispatch{Holder: holder},
	})

	for _, r := range holder.DrainEarlyRemoteReads() {
		s.routeToWorker(idx, r)
	}
}

func (s *Scheduler) routeToWorker(idx uint32, r message.RemoteReadResult) {
	s.dispatcher.Route(idx, message.Envelope{
		Type:        message.TypeRemoteReadResult,
		FromMachine: s.cfg.LocalMachineId(),
		Payload:     r,
	})
}

// HandleRemoteReadResult relays an incoming remote read to the worker
// executing its transaction, buffering it on the holder if that worker
// hasn't been assigned yet (spec.md §4.8). If the message signals a
// remote-initiated abort (will_abort) and the holder hasn't been dispatched
// yet, it starts a pre-dispatch abort (spec.md §4.6, §7); a dispatched
// holder only ever takes the relay branch, since a dispatched txn can no
// longer be pre-dispatch aborted.
func (s *Scheduler) HandleRemoteReadResult(r message.RemoteReadResult) {
	holder, ok := s.allTxns[r.TxnID]
	if !ok {
		holder = txn.NewHolder()
		s.allTxns[r.TxnID] = holder
	}
	if idx, ready := holder.Worker(); ready {
		s.routeToWorker(idx, r)
		return
	}

	dropped := holder.PushEarlyRemoteRead(r, s.cfg.MaxEarlyArrivalQueue)
	if dropped {
		log.Warn("early remote read queue overflowed, dropping oldest", zap.Uint64("txn_id", r.TxnID))
	}

	if r.WillAbort && !s.isAborting(r.TxnID) {
		s.triggerAbort(r.TxnID, holder)
	}
}

// HandleWorkerResponse releases txnID's locks, forwards any now-runnable
// waiters, and tears down its bookkeeping.
func (s *Scheduler) HandleWorkerResponse(resp message.WorkerResponse) {
	holder, ok := s.allTxns[resp.TxnID]
	if !ok {
		return
	}
	t := holder.Transaction()
	txn.RecordTxnEvent(t, txn.EventReleaseLocks, s.cfg.LocalMachineId())

	keys := make([]string, 0, len(holder.KeysInPartition()))
	for k := range holder.KeysInPartition() {
		keys = append(keys, k)
	}
	ready := s.lockmgr.ReleaseLocks(resp.TxnID, keys)

	txn.RecordTxnEvent(t, txn.EventExitScheduler, s.cfg.LocalMachineId())
	delete(s.allTxns, resp.TxnID)
	delete(s.abortingTxns, resp.TxnID)
	s.lockmgr.ForgetTransaction(resp.TxnID)
	if s.remasterer != nil {
		s.remasterer.ReleaseTransaction(resp.TxnID)
	}

	for _, id := range ready {
		if h, ok := s.allTxns[id]; ok {
			s.accept(id, h)
		}
	}
}

// HandleCompletedSubtxn replies to the coordinating server once a worker
// finishes its sub-transaction.
func (s *Scheduler) HandleCompletedSubtxn(sub message.CompletedSubtxn) {
	s.transport.ReplyToCoordinator(sub)
}

// triggerAbort is the ALIVE -> ABORTING transition (spec.md §4.6): mark the
// txn aborting, then run ContinueAbort immediately if its body has already
// arrived, or defer until it does (the "Txn arrives" transition in accept).
func (s *Scheduler) triggerAbort(txnID uint64, holder *txn.TransactionHolder) {
	if s.isAborting(txnID) {
		return
	}
	s.abortingTxns[txnID] = stateAborting
	if holder.Transaction() != nil {
		s.continueAbort(txnID, holder)
	}
}

// continueAbort runs ContinueAbort's actions (spec.md §4.6): mark the
// transaction aborted, reply to the coordinating server, propagate
// will_abort to every other active partition in the local region, release
// remaster/lock-manager bookkeeping, and, for MULTI_HOME, start tracking
// outstanding LOCK_ONLY shards before checking whether the abort can
// already finalize.
func (s *Scheduler) continueAbort(txnID uint64, holder *txn.TransactionHolder) {
	t := holder.Transaction()
	t.Status = txn.StatusAborted
	metrics.SchedulerTxnsAborted.Inc()

	s.transport.ReplyToCoordinator(message.CompletedSubtxn{
		Txn:                t,
		Partition:          s.cfg.LocalPartition,
		InvolvedPartitions: metrics.SortUint32(holder.InvolvedPartitions()),
	})

	if len(holder.InvolvedPartitions()) > 1 {
		for p := range holder.ActivePartitions() {
			if p == s.cfg.LocalPartition {
				continue
			}
			s.transport.SendRemoteRead(s.cfg.MakeMachineIdNum(s.cfg.LocalReplica, p), message.RemoteReadResult{
				TxnID:     txnID,
				Partition: s.cfg.LocalPartition,
				WillAbort: true,
			})
		}
	}

	s.lockmgr.ForgetTransaction(txnID)
	if s.remasterer != nil {
		s.remasterer.ReleaseTransaction(txnID)
	}

	if t.Type == txn.MultiHome {
		waiting := len(holder.InvolvedReplicas())
		for key := range s.lockOnlyTxns {
			if key.TxnID == txnID {
				delete(s.lockOnlyTxns, key)
				waiting--
			}
		}
		if waiting < 0 {
			waiting = 0
		}
		s.mhAbortWaitingOn[txnID] = waiting
	}

	s.maybeFinishAbort(txnID, holder)
}

// decrementMHAbortWaiting handles a LOCK_ONLY shard arriving for an already
// ABORTING MULTI_HOME: the shard itself was erased by the caller, this just
// accounts for it and re-checks whether the abort can now finalize.
func (s *Scheduler) decrementMHAbortWaiting(txnID uint64) {
	if n, ok := s.mhAbortWaitingOn[txnID]; ok {
		n--
		if n < 0 {
			n = 0
		}
		s.mhAbortWaitingOn[txnID] = n
	}
	if holder, ok := s.allTxns[txnID]; ok {
		s.maybeFinishAbort(txnID, holder)
	}
}

// maybeFinishAbort finalizes an ABORTING transaction once none of spec.md
// §4.6's MaybeFinish blocking conditions hold: the holder's body must have
// arrived; if the local partition is active, it must have buffered at least
// |InvolvedPartitions|-1 EarlyRemoteReads; and a MULTI_HOME must have no
// outstanding LOCK_ONLY shards left. Finalizing erases all holder state
// (including the abortingTxns entry itself, so isAborting reports false
// again, same as an unaborted TxnId).
func (s *Scheduler) maybeFinishAbort(txnID uint64, holder *txn.TransactionHolder) {
	t := holder.Transaction()
	if t == nil {
		return
	}
	if _, active := holder.ActivePartitions()[s.cfg.LocalPartition]; active {
		need := len(holder.InvolvedPartitions()) - 1
		if len(holder.EarlyRemoteReads()) < need {
			return
		}
	}
	if t.Type == txn.MultiHome && s.mhAbortWaitingOn[txnID] != 0 {
		return
	}

	delete(s.allTxns, txnID)
	delete(s.abortingTxns, txnID)
	delete(s.mhAbortWaitingOn, txnID)
}

// Stats is the JSON snapshot returned for a StatsRequest.
type Stats struct {
	NumTxns         int                `json:"num_txns"`
	NumLockOnly     int                `json:"num_lock_only"`
	NumAborting     int                `json:"num_aborting"`
	TxnIDs          *metrics.Uint64Set `json:"txn_ids"`
	LockOnlyRegions []uint32           `json:"lock_only_regions"`
	LockManager     lockmgr.Stats      `json:"lock_manager"`
}

func (s *Scheduler) StatsSnapshot() Stats {
	ids := metrics.NewUint64Set()
	for id := range s.allTxns {
		ids.Add(id)
	}
	regions := make(map[uint32]struct{})
	for key := range s.lockOnlyTxns {
		regions[key.Region] = struct{}{}
	}
	return Stats{
		NumTxns:         len(s.allTxns),
		NumLockOnly:     len(s.lockOnlyTxns),
		NumAborting:     len(s.abortingTxns),
		TxnIDs:          ids,
		LockOnlyRegions: metrics.SortUint32(regions),
		LockManager:     s.lockmgr.StatsSnapshot(),
	}
}

// HandleStatsRequest serializes the current state for a StatsRequest.
func (s *Scheduler) HandleStatsRequest(req message.StatsRequest) message.StatsResponse {
	b, err := json.Marshal(s.StatsSnapshot())
	if err != nil {
		log.Error("failed to marshal scheduler stats", zap.Error(err))
		b = []byte("{}")
	}
	return message.StatsResponse{ID: req.ID, StatsJSON: string(b)}
}
