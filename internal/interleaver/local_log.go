package interleaver

import "github.com/abadid/SLOG/internal/orderedlog"

// LocalLog merges the slot stream (which queue owns the next slot) with a
// family of per-queue batch-id streams (that queue's next batch, in the
// order it was produced) into a single slot-ordered (SlotId, BatchId)
// stream, per spec.md §4.1.
type LocalLog struct {
	slots       *orderedlog.SequenceBuffer[uint32]
	batchQueues map[uint32]*orderedlog.SequenceBuffer[uint64]
	ready       []SlotBatch
}

// SlotBatch pairs a slot with the batch id the LocalLog resolved it to.
type SlotBatch struct {
	Slot    uint64
	BatchID uint64
}

func NewLocalLog() *LocalLog {
	return &LocalLog{
		slots:       orderedlog.NewSequenceBuffer[uint32](0),
		batchQueues: make(map[uint32]*orderedlog.SequenceBuffer[uint64]),
	}
}

func (l *LocalLog) queue(queueID uint32) *orderedlog.SequenceBuffer[uint64] {
	q, ok := l.batchQueues[queueID]
	if !ok {
		q = orderedlog.NewSequenceBuffer[uint64](0)
		l.batchQueues[queueID] = q
	}
	return q
}

// AddBatchId records that queueID's batch at position is batchID.
func (l *LocalLog) AddBatchId(queueID, position uint32, batchID uint64) {
	l.queue(queueID).Insert(uint64(position), batchID)
	l.updateReady()
}

// AddSlot records that slotID names queueID as the next queue to contribute
// a batch to the local log.
func (l *LocalLog) AddSlot(slotID uint64, queueID uint32) {
	l.slots.Insert(slotID, queueID)
	l.updateReady()
}

// updateReady repeatedly peeks the next slot; if its queue exists and has a
// deliverable next batch, both are consumed and the pair is pushed to ready.
// This mirrors the source's UpdateReadyBatches exactly: peeking rather than
// consuming the slot stream up front means a slot whose queue has no batch
// yet correctly stalls the whole log, not just that one queue.
func (l *LocalLog) updateReady() {
	for l.slots.HasNext() {
		slotEntry := l.slots.Peek()
		queueID := slotEntry.Value
		q, ok := l.batchQueues[queueID]
		if !ok || !q.HasNext() {
			break
		}
		slot := l.slots.Next()
		batch := q.Next()
		l.ready = append(l.ready, SlotBatch{Slot: slot.Position, BatchID: batch.Value})
	}
}

// HasNextBatch reports whether a (slot, batch) pair is ready.
func (l *LocalLog) HasNextBatch() bool {
	return len(l.ready) > 0
}

// NextBatch consumes and returns the next ready (slot, batch) pair. Calling
// this when HasNextBatch is false is a programmer error, matching the
// source's contract.
func (l *LocalLog) NextBatch() SlotBatch {
	if !l.HasNextBatch() {
		panic("interleaver: LocalLog.NextBatch called with no batch ready")
	}
	sb := l.ready[0]
	l.ready = l.ready[1:]
	return sb
}
