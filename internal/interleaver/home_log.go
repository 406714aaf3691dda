package interleaver

import (
	"github.com/abadid/SLOG/internal/orderedlog"
	"github.com/abadid/SLOG/internal/txn"
)

// HomeLog joins a slot stream against batch bodies delivered separately,
// emitting batches in slot order and stalling a slot whose body has not
// arrived yet even if a later slot's body already has. Both SingleHomeLog
// (one per origin region) and MultiHomeLog (which uses a batch's own id as
// its slot, since multi-home batches need no separate ordering announcement)
// are instances of this same join, per spec.md §4.2.
type HomeLog struct {
	slots   *orderedlog.SequenceBuffer[uint64]
	bodies  map[uint64]*txn.Batch
	waiting []uint64
	ready   []*txn.Batch
}

func NewHomeLog() *HomeLog {
	return &HomeLog{
		slots:  orderedlog.NewSequenceBuffer[uint64](0),
		bodies: make(map[uint64]*txn.Batch),
	}
}

// AddSlot records that slot resolves to batchID, once that body arrives.
func (h *HomeLog) AddSlot(slot, batchID uint64) {
	h.slots.Insert(slot, batchID)
	for h.slots.HasNext() {
		h.waiting = append(h.waiting, h.slots.Next().Value)
	}
	h.advance()
}

// AddBatch delivers a batch body. It may arrive before or after its slot.
func (h *HomeLog) AddBatch(b *txn.Batch) {
	h.bodies[b.ID] = b
	h.advance()
}

// advance drains as many leading waiting batch ids as have a body present.
func (h *HomeLog) advance() {
	for len(h.waiting) > 0 {
		id := h.waiting[0]
		b, ok := h.bodies[id]
		if !ok {
			break
		}
		delete(h.bodies, id)
		h.waiting = h.waiting[1:]
		h.ready = append(h.ready, b)
	}
}

func (h *HomeLog) HasNextBatch() bool {
	return len(h.ready) > 0
}

func (h *HomeLog) NextBatch() *txn.Batch {
	if !h.HasNextBatch() {
		panic("interleaver: HomeLog.NextBatch called with no batch ready")
	}
	b := h.ready[0]
	h.ready = h.ready[1:]
	return b
}
