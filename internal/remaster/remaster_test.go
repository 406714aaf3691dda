package remaster_test

import (
	"testing"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/remaster"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerReturnsNilForNonCounterProtocols(t *testing.T) {
	assert.Nil(t, remaster.NewManager(config.RemasterProtocolNone, storage.NewMemStorage()))
	assert.Nil(t, remaster.NewManager(config.RemasterProtocolCounterless, storage.NewMemStorage()))
}

func TestVerifyMasterValidWhenCountersMatch(t *testing.T) {
	store := storage.NewMemStorage()
	store.Set("k", storage.Record{Master: txn.MasterMetadata{Master: 1, Counter: 5}})
	m := remaster.NewManager(config.RemasterProtocolSimple, store)
	require.NotNil(t, m)

	v := m.VerifyMaster(&txn.Transaction{MasterMetadata: map[string]txn.MasterMetadata{"k": {Master: 1, Counter: 5}}})
	assert.Equal(t, remaster.VerdictValid, v)
}

func TestVerifyMasterAbortsOnStaleCounter(t *testing.T) {
	store := storage.NewMemStorage()
	store.Set("k", storage.Record{Master: txn.MasterMetadata{Master: 1, Counter: 5}})
	m := remaster.NewManager(config.RemasterProtocolSimple, store)

	v := m.VerifyMaster(&txn.Transaction{MasterMetadata: map[string]txn.MasterMetadata{"k": {Master: 0, Counter: 4}}})
	assert.Equal(t, remaster.VerdictAbort, v)
}

func TestVerifyMasterWaitsOnFutureCounterThenReleases(t *testing.T) {
	store := storage.NewMemStorage()
	store.Set("k", storage.Record{Master: txn.MasterMetadata{Master: 0, Counter: 3}})
	m := remaster.NewManager(config.RemasterProtocolSimple, store)

	v := m.VerifyMaster(&txn.Transaction{ID: 42, MasterMetadata: map[string]txn.MasterMetadata{"k": {Master: 1, Counter: 4}}})
	require.Equal(t, remaster.VerdictWait, v)

	waiters := m.RemasterOccurred("k", 1)
	assert.Equal(t, []uint64{42}, waiters)
}
