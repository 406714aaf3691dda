// Package worker runs the pool of goroutines that execute dispatched
// transactions: read local keys, execute the stored procedure, exchange
// remote reads with the other partitions the transaction touches, apply
// writes/deletes, and reply. Grounded on the generic worker-pool shape of
// kv/util/worker/worker.go (a fixed pool of goroutines pulling Tasks off one
// channel) and the synchronous read-exchange algorithm of worker.cpp.
package worker

import (
	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Transport is a worker's view of the outside world.
type Transport interface {
	SendRemoteRead(toMachine uint32, result message.RemoteReadResult)
	Reply(resp message.WorkerResponse)
	ForwardCompleted(sub message.CompletedSubtxn)
}

// Worker executes one transaction at a time on its own goroutine, identified
// by Index so the Scheduler can route a transaction's remote-read replies
// back to the same worker that dispatched it (message.WorkerChannel(Index)).
type Worker struct {
	Index     uint32
	cfg       *config.Configuration
	store     storage.Storage
	procedure StoredProcedure
	transport Transport

	inbox chan message.Envelope
}

func New(index uint32, cfg *config.Configuration, store storage.Storage, transport Transport) *Worker {
	return &Worker{
		Index:     index,
		cfg:       cfg,
		store:     store,
		procedure: KeyValueProcedure{},
		transport: transport,
		inbox:     make(chan message.Envelope, 64),
	}
}

// Inbox is the channel the Scheduler/router feeds this worker's dispatch and
// remote-read messages into.
func (w *Worker) Inbox() chan<- message.Envelope {
	return w.inbox
}

// Run processes dispatches off the inbox until it is closed.
func (w *Worker) Run() {
	for env := range w.inbox {
		dispatch, ok := env.Payload.(message.WorkerDispatch)
		if !ok {
			log.Warn("worker received non-dispatch as first message", zap.Uint32("worker", w.Index))
			continue
		}
		w.Execute(dispatch.Holder)
	}
}

// Execute runs one transaction to completion: local reads, remote read
// exchange, stored procedure, writes/deletes, reply. It blocks this worker
// goroutine until every other active partition's reads have arrived, which
// is the "exchange remote reads synchronously" spec.md §4.8 calls for: one
// worker, one transaction, no interleaving with other transactions.
func (w *Worker) Execute(holder *txn.TransactionHolder) {
	t := holder.Transaction()

	reads := make(map[string][]byte)
	for key := range holder.KeysInPartition() {
		if rec, ok := w.store.Get(key); ok {
			reads[key] = rec.Value
		}
	}

	local := w.cfg.LocalPartition
	others := 0
	for p := range holder.InvolvedPartitions() {
		if p == local {
			continue
		}
		others++
		w.transport.SendRemoteRead(w.cfg.MakeMachineIdNum(w.cfg.LocalReplica, p), message.RemoteReadResult{
			TxnID:     t.ID,
			Partition: local,
			Reads:     reads,
		})
	}

	// WillAbort on an incoming RemoteReadResult is never acted on here: by
	// the time a holder reaches Execute it has already been dispatched, and
	// spec.md §4.6 forbids pre-dispatch aborting a dispatched transaction.
	// A remote-initiated abort observed before dispatch is handled entirely
	// by the Scheduler (HandleRemoteReadResult -> triggerAbort); this worker
	// only ever sees the merged Reads values.
	received := 0
	for _, r := range holder.DrainEarlyRemoteReads() {
		received++
		for k, v := range r.Reads {
			reads[k] = v
		}
	}
	for received < others {
		env := <-w.inbox
		r, ok := env.Payload.(message.RemoteReadResult)
		if !ok || r.TxnID != t.ID {
			// A late message for a different transaction than the one this
			// worker is currently executing cannot happen under the
			// one-worker-one-transaction invariant; ignored defensively.
			continue
		}
		received++
		for k, v := range r.Reads {
			reads[k] = v
		}
	}

	if err := w.procedure.Execute(w.store, reads, t.WriteSet, t.DeleteSet); err != nil {
		log.Error("stored procedure failed", zap.Uint64("txn_id", t.ID), zap.Error(err))
		t.Status = txn.StatusAborted
	} else {
		t.Status = txn.StatusCommitted
	}

	involved := make([]uint32, 0, len(holder.InvolvedPartitions()))
	for p := range holder.InvolvedPartitions() {
		involved = append(involved, p)
	}

	w.transport.ForwardCompleted(message.CompletedSubtxn{
		Txn:                t,
		Partition:          local,
		InvolvedPartitions: involved,
	})
	w.transport.Reply(message.WorkerResponse{TxnID: t.ID})
}

// Pool is a fixed set of Workers, each running on its own goroutine.
type Pool struct {
	Workers []*Worker
}

// NewPool builds cfg.NumWorkers workers sharing store and transport.
func NewPool(cfg *config.Configuration, store storage.Storage, transport Transport) *Pool {
	p := &Pool{Workers: make([]*Worker, cfg.NumWorkers)}
	for i := range p.Workers {
		p.Workers[i] = New(uint32(i), cfg, store, transport)
	}
	return p
}

// Start launches every worker's Run loop.
func (p *Pool) Start() {
	for _, w := range p.Workers {
		go w.Run()
	}
}

// Route delivers env to the worker at index, as addressed by
// message.WorkerChannel(index).
func (p *Pool) Route(index uint32, env message.Envelope) {
	p.Workers[index].inbox <- env
}
