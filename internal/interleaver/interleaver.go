// Package interleaver merges the three logs (LocalLog, SingleHomeLog per
// origin region, MultiHomeLog) a region's partition maintains into the
// single deterministic transaction order the Scheduler consumes, per
// spec.md §4.1-§4.2.
package interleaver

import (
	"sort"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/metrics"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Transport is the Interleaver's view of the outside world: broadcasting a
// newly-discovered (slot, batch) pairing to peer regions' same-partition
// Interleaver, and forwarding a fully-ordered transaction on to the local
// Scheduler. A real process wires this to its NetworkedModule's Send; tests
// wire it to an in-memory recorder.
type Transport interface {
	SendBatchOrder(toReplica uint32, order message.ForwardBatchOrder)
	ForwardTxn(t *txn.Transaction)
}

// Interleaver owns one LocalLog, one SingleHomeLog per origin region, and one
// MultiHomeLog, and drains them in the fixed order spec.md §4.1 requires:
// LocalLog, then every SingleHomeLog, then MultiHomeLog.
type Interleaver struct {
	cfg       *config.Configuration
	transport Transport

	local       *LocalLog
	singleHomes map[uint32]*HomeLog
	multiHome   *HomeLog
}

func New(cfg *config.Configuration, transport Transport) *Interleaver {
	return &Interleaver{
		cfg:         cfg,
		transport:   transport,
		local:       NewLocalLog(),
		singleHomes: make(map[uint32]*HomeLog),
		multiHome:   NewHomeLog(),
	}
}

func (it *Interleaver) singleHome(region uint32) *HomeLog {
	l, ok := it.singleHomes[region]
	if !ok {
		l = NewHomeLog()
		it.singleHomes[region] = l
	}
	return l
}

// HandleLocalQueueOrder processes a Sequencer announcement that slot names
// queueID's next batch in this region's local order.
func (it *Interleaver) HandleLocalQueueOrder(order message.LocalQueueOrder) {
	it.local.AddSlot(order.Slot, order.QueueID)
	it.AdvanceLogs()
}

// HandleForwardBatchData processes a batch body forwarded either by a
// same-region partition's Sequencer (local origin) or a peer region's
// Interleaver (remote origin). A local-origin SINGLE_HOME batch also feeds
// the LocalLog, since this partition is the one that must discover its slot.
func (it *Interleaver) HandleForwardBatchData(fromMachine uint32, data message.ForwardBatchData) {
	b := data.Batch
	fromReplica, _ := it.cfg.UnpackMachineId(fromMachine)

	switch b.TransactionType {
	case txn.MultiHome:
		it.multiHome.AddSlot(b.ID, b.ID)
		it.multiHome.AddBatch(b)
	default:
		if fromReplica == it.cfg.LocalReplica {
			it.local.AddBatchId(fromMachine, data.SameOriginPosition, b.ID)
		}
		it.singleHome(fromReplica).AddBatch(b)
	}
	it.AdvanceLogs()
}

// HandleForwardBatchOrder processes a peer region's LocalLog announcement of
// a (slot, batch) pairing for that region's SingleHomeLog here.
func (it *Interleaver) HandleForwardBatchOrder(fromMachine uint32, order message.ForwardBatchOrder) {
	fromReplica, _ := it.cfg.UnpackMachineId(fromMachine)
	it.singleHome(fromReplica).AddSlot(order.Slot, order.BatchID)
	it.AdvanceLogs()
}

// AdvanceLogs drains whatever is newly ready, in the fixed order: LocalLog
// (broadcasting each discovery to every peer region and feeding the local
// region's own SingleHomeLog), then every SingleHomeLog, then MultiHomeLog.
func (it *Interleaver) AdvanceLogs() {
	for it.local.HasNextBatch() {
		sb := it.local.NextBatch()
		order := message.ForwardBatchOrder{BatchID: sb.BatchID, Slot: sb.Slot}
		for replica := uint32(0); replica < it.cfg.NumReplicas; replica++ {
			if replica == it.cfg.LocalReplica {
				continue
			}
			it.transport.SendBatchOrder(replica, order)
		}
		it.singleHome(it.cfg.LocalReplica).AddSlot(sb.Slot, sb.BatchID)
	}

	// Iterated in sorted region order, not map order: with more than one
	// region's SingleHomeLog ready in the same AdvanceLogs call, ranging the
	// map directly would make the cross-region emission order (part of the
	// global total order) nondeterministic across replicas.
	for _, region := range it.sortedSingleHomeRegions() {
		sh := it.singleHomes[region]
		for sh.HasNextBatch() {
			it.emitBatch(sh.NextBatch())
		}
	}

	for it.multiHome.HasNextBatch() {
		it.emitBatch(it.multiHome.NextBatch())
	}
}

// sortedSingleHomeRegions returns the regions with a SingleHomeLog, in
// ascending order, so AdvanceLogs drains them deterministically.
func (it *Interleaver) sortedSingleHomeRegions() []uint32 {
	regions := make([]uint32, 0, len(it.singleHomes))
	for r := range it.singleHomes {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })
	return regions
}

// emitBatch forwards every transaction in b to the Scheduler in the order
// the batch was built, carrying b's event trace onto each one.
func (it *Interleaver) emitBatch(b *txn.Batch) {
	metrics.InterleaverBatchesEmitted.Inc()
	txn.RecordBatchEvent(b, txn.EventExitInterleaver, it.cfg.LocalMachineId())
	for _, t := range b.Transactions {
		t.Events.MergeFrom(b.Events)
		log.Debug("interleaver emitting transaction",
			zap.Uint64("txn_id", t.ID), zap.Uint64("batch_id", b.ID))
		it.transport.ForwardTxn(t)
	}
}
