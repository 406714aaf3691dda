package worker

import "github.com/abadid/SLOG/internal/storage"

// StoredProcedure is the executable body of a transaction: given the values
// read (both from local storage and, for remote keys, from the
// RemoteReadResult exchange), it produces the writes and deletes to apply.
// This system treats the procedure itself as pre-compiled into the
// transaction's read/write/delete sets rather than an interpreted bytecode
// (spec.md Non-goals excludes a procedure language), so KeyValueProcedure is
// the only implementation: it simply applies WriteSet/DeleteSet verbatim
// once every read dependency is satisfied.
type StoredProcedure interface {
	// Execute applies writes and deletes for the keys local to this
	// partition, given every key this partition needs to read (its own
	// plus whatever arrived via remote reads).
	Execute(store storage.Storage, reads map[string][]byte, writes map[string][]byte, deletes []string) error
}

// KeyValueProcedure is the only stored procedure this system runs: a flat
// read-then-write-then-delete with no conditional logic, matching the
// source's "no real procedure interpreter" scope.
type KeyValueProcedure struct{}

func (KeyValueProcedure) Execute(store storage.Storage, reads map[string][]byte, writes map[string][]byte, deletes []string) error {
	for key, val := range writes {
		rec, _ := store.Get(key)
		rec.Value = val
		store.Set(key, rec)
	}
	for _, key := range deletes {
		store.Delete(key)
	}
	return nil
}
