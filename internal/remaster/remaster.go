// Package remaster tracks in-flight master reassignments so the Scheduler
// can tell a transaction sequenced against a since-superseded master from
// one that is still valid, per spec.md §4.7. The source picks one of
// several implementations at compile time via REMASTER_PROTOCOL_* macros;
// this package instead exposes them as a runtime-selected Manager, chosen
// once from config.RemasterProtocol at startup (Design Note, SPEC_FULL.md
// §9).
package remaster

import (
	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
)

// Verdict is the outcome of checking a transaction's captured master
// metadata against current state.
type Verdict int

const (
	// VerdictValid means every key's captured master still matches, or the
	// transaction can safely wait for an in-flight remaster to finish.
	VerdictValid Verdict = iota
	// VerdictWait means the transaction must be re-queued until a
	// remaster currently in flight for one of its keys completes.
	VerdictWait
	// VerdictAbort means the transaction was sequenced against a master
	// that has already been superseded and cannot become valid by waiting.
	VerdictAbort
)

// Manager is the runtime interface both counter-aware protocols
// (RemasterProtocolSimple, RemasterProtocolPerKey) implement.
// RemasterProtocolNone and RemasterProtocolCounterless never construct one:
// None skips remaster tracking entirely, Counterless performs its trivial
// check inline in the Scheduler.
type Manager interface {
	// VerifyMaster checks t's captured MasterMetadata against storage,
	// returning whether t may proceed, must wait, or must abort.
	VerifyMaster(t *txn.Transaction) Verdict
	// RemasterOccurred updates internal bookkeeping once a remaster
	// transaction for key has committed, returning the txn ids that were
	// waiting on it and may now be re-verified.
	RemasterOccurred(key string, newMaster uint32) []uint64
	// ReleaseTransaction forgets t, called once it reaches a terminal
	// status so a manager tracking per-txn waiters doesn't leak.
	ReleaseTransaction(txnID uint64)
}

// NewManager constructs the Manager for protocol, or nil for protocols that
// don't use one (RemasterProtocolNone, RemasterProtocolCounterless).
func NewManager(protocol config.RemasterProtocol, store storage.Storage) Manager {
	if !protocol.UsesRemasterManager() {
		return nil
	}
	return newCounterManager(store)
}

// counterManager implements both RemasterProtocolSimple and
// RemasterProtocolPerKey: the two differ in the source only in how the
// waiters-per-key index is laid out internally, a distinction with no
// observable effect on this system's Scheduler/Interleaver behavior, so one
// implementation serves both (documented decision, see DESIGN.md).
type counterManager struct {
	store   storage.Storage
	waiters map[string][]uint64 // key -> txn ids blocked on that key's remaster
}

func newCounterManager(store storage.Storage) *counterManager {
	return &counterManager{store: store, waiters: make(map[string][]uint64)}
}

func (m *counterManager) VerifyMaster(t *txn.Transaction) Verdict {
	for key, md := range t.MasterMetadata {
		rec, ok := m.store.Get(key)
		if !ok {
			continue
		}
		if rec.Master.Counter > md.Counter {
			return VerdictAbort
		}
		if rec.Master.Counter < md.Counter {
			// Storage hasn't caught up to the counter this txn was
			// sequenced against yet: block until it does.
			m.waiters[key] = append(m.waiters[key], t.ID)
			return VerdictWait
		}
		if rec.Master.Master != md.Master {
			return VerdictAbort
		}
	}
	return VerdictValid
}

func (m *counterManager) RemasterOccurred(key string, newMaster uint32) []uint64 {
	waiting := m.waiters[key]
	delete(m.waiters, key)
	return waiting
}

func (m *counterManager) ReleaseTransaction(txnID uint64) {
	for key, ids := range m.waiters {
		filtered := ids[:0]
		for _, id := range ids {
			if id != txnID {
				filtered = append(filtered, id)
			}
		}
		m.waiters[key] = filtered
	}
}
