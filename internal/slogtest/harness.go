// Package slogtest assembles a single-process, single-partition pipeline
// (Interleaver -> Scheduler -> Worker -> Scheduler) wired together
// synchronously instead of over goroutines/channels, so package tests can
// drive a transaction end to end and assert on the resulting storage state
// and event trace in one call. Grounded on the purpose of
// common/test_utils.h's TestSlog harness in the original implementation:
// a small in-process deployment other tests build on rather than drive the
// real network stack.
package slogtest

import (
	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/interleaver"
	"github.com/abadid/SLOG/internal/lockmgr"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/remaster"
	"github.com/abadid/SLOG/internal/scheduler"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/abadid/SLOG/internal/worker"
)

// Harness is a synchronous single-partition SLOG deployment: no goroutines,
// no channels, every hop called directly so a test can submit a transaction
// and immediately inspect the outcome.
type Harness struct {
	Cfg     *config.Configuration
	Store   *storage.MemStorage
	LockMgr *lockmgr.LockManager

	sched   *scheduler.Scheduler
	workers []*worker.Worker

	// Completed accumulates every CompletedSubtxn the scheduler has
	// replied with, in order.
	Completed []message.CompletedSubtxn
}

// New builds a harness for one replica/one partition with numWorkers
// workers and the given remaster protocol.
func New(numWorkers uint32, protocol config.RemasterProtocol) *Harness {
	cfg := config.Default()
	cfg.NumWorkers = numWorkers
	cfg.RemasterProtocol = protocol

	store := storage.NewMemStorage()
	lm := lockmgr.New(cfg)
	rm := remaster.NewManager(protocol, store)

	h := &Harness{Cfg: cfg, Store: store, LockMgr: lm}

	h.workers = make([]*worker.Worker, numWorkers)
	for i := range h.workers {
		h.workers[i] = worker.New(uint32(i), cfg, store, h)
	}
	h.sched = scheduler.New(cfg, store, lm, rm, h, h)
	return h
}

// Route implements scheduler.Dispatcher: since there is exactly one
// partition, every dispatch resolves to a local worker, executed inline
// (InvolvedPartitions never names another partition, so Worker.Execute
// never blocks waiting on a remote read that would never arrive).
func (h *Harness) Route(workerIndex uint32, env message.Envelope) {
	if p, ok := env.Payload.(message.WorkerDispatch); ok {
		h.workers[workerIndex].Execute(p.Holder)
	}
}

// SendRemoteRead implements both worker.Transport and scheduler.Transport;
// unused in a single-partition harness, since a transaction never has a
// second partition to exchange a remote read (or a will_abort signal) with.
func (h *Harness) SendRemoteRead(toMachine uint32, result message.RemoteReadResult) {}

// Reply implements worker.Transport by feeding the response straight back
// into the scheduler, exactly as the real deployment routes a
// message.WorkerResponse envelope to the scheduler's channel.
func (h *Harness) Reply(resp message.WorkerResponse) {
	h.sched.HandleWorkerResponse(resp)
}

// ForwardCompleted implements worker.Transport.
func (h *Harness) ForwardCompleted(sub message.CompletedSubtxn) {
	h.Completed = append(h.Completed, sub)
}

// ReplyToCoordinator implements scheduler.Transport.
func (h *Harness) ReplyToCoordinator(sub message.CompletedSubtxn) {
	h.Completed = append(h.Completed, sub)
}

// Submit pushes t through the scheduler as if the Interleaver had just
// emitted it in total order.
func (h *Harness) Submit(t *txn.Transaction) {
	h.sched.HandleForwardTxn(t)
}

// NewInterleaver builds an Interleaver wired to transport, for tests that
// exercise ordering directly rather than going through Submit.
func NewInterleaver(cfg *config.Configuration, transport interleaver.Transport) *interleaver.Interleaver {
	return interleaver.New(cfg, transport)
}

// Cluster is a synchronous multi-partition, single-replica SLOG deployment:
// one Harness-equivalent per partition, with cross-partition SendRemoteRead
// calls routed directly to the target partition's Scheduler instead of
// being dropped, so tests can exercise the cross-partition relay path
// (message.RemoteReadResult, including will_abort) that a single-partition
// Harness cannot reach.
type Cluster struct {
	Cfg        *config.Configuration
	Partitions []*clusterPartition
}

type clusterPartition struct {
	cluster *Cluster
	index   uint32

	Store   *storage.MemStorage
	LockMgr *lockmgr.LockManager
	Sched   *scheduler.Scheduler
	workers []*worker.Worker

	Completed []message.CompletedSubtxn
}

// NewCluster builds a Cluster of numPartitions partitions sharing one
// replica, each with numWorkers workers and the given remaster protocol.
func NewCluster(numPartitions, numWorkers uint32, protocol config.RemasterProtocol) *Cluster {
	c := &Cluster{Partitions: make([]*clusterPartition, numPartitions)}
	c.Cfg = config.Default()
	c.Cfg.NumPartitions = numPartitions
	c.Cfg.NumWorkers = numWorkers
	c.Cfg.RemasterProtocol = protocol

	for i := range c.Partitions {
		cfg := config.Default()
		cfg.NumPartitions = numPartitions
		cfg.LocalPartition = uint32(i)
		cfg.NumWorkers = numWorkers
		cfg.RemasterProtocol = protocol

		store := storage.NewMemStorage()
		lm := lockmgr.New(cfg)
		rm := remaster.NewManager(protocol, store)

		p := &clusterPartition{cluster: c, index: uint32(i), Store: store, LockMgr: lm}
		p.workers = make([]*worker.Worker, numWorkers)
		for w := range p.workers {
			p.workers[w] = worker.New(uint32(w), cfg, store, p)
		}
		p.Sched = scheduler.New(cfg, store, lm, rm, p, p)
		c.Partitions[i] = p
	}
	return c
}

// Submit pushes t through partition index's scheduler, as if the
// Interleaver had just emitted it there.
func (c *Cluster) Submit(index uint32, t *txn.Transaction) {
	c.Partitions[index].Sched.HandleForwardTxn(t)
}

// Route implements scheduler.Dispatcher, local to this partition.
func (p *clusterPartition) Route(workerIndex uint32, env message.Envelope) {
	if d, ok := env.Payload.(message.WorkerDispatch); ok {
		p.workers[workerIndex].Execute(d.Holder)
	}
}

// SendRemoteRead implements both worker.Transport and scheduler.Transport by
// routing result to toMachine's partition, resolved via UnpackMachineId,
// exactly as a real NetworkedModule.Send would resolve an address to a
// channel. Used for both ordinary cross-partition remote reads and
// will_abort propagation.
func (p *clusterPartition) SendRemoteRead(toMachine uint32, result message.RemoteReadResult) {
	_, partition := p.cluster.Cfg.UnpackMachineId(toMachine)
	p.cluster.Partitions[partition].Sched.HandleRemoteReadResult(result)
}

// Reply implements worker.Transport.
func (p *clusterPartition) Reply(resp message.WorkerResponse) {
	p.Sched.HandleWorkerResponse(resp)
}

// ForwardCompleted implements worker.Transport.
func (p *clusterPartition) ForwardCompleted(sub message.CompletedSubtxn) {
	p.Completed = append(p.Completed, sub)
}

// ReplyToCoordinator implements scheduler.Transport.
func (p *clusterPartition) ReplyToCoordinator(sub message.CompletedSubtxn) {
	p.Completed = append(p.Completed, sub)
}
