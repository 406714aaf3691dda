package scheduler

import (
	"testing"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/lockmgr"
	"github.com/abadid/SLOG/internal/message"
	"github.com/abadid/SLOG/internal/storage"
	"github.com/abadid/SLOG/internal/txn"
	"github.com/stretchr/testify/assert"
)

type noopDispatcher struct{}

func (noopDispatcher) Route(uint32, message.Envelope) {}

type recordingTransport struct {
	replied []message.CompletedSubtxn
}

func (r *recordingTransport) ReplyToCoordinator(sub message.CompletedSubtxn) {
	r.replied = append(r.replied, sub)
}
func (r *recordingTransport) SendRemoteRead(uint32, message.RemoteReadResult) {}

// TestHandleCompletedSubtxnForwardsToCoordinator exercises the pass-through a
// peer partition's forwarded CompletedSubtxn takes on its way to whichever
// partition is relaying it to the coordinating server, independent of the
// worker's own direct ForwardCompleted path exercised by the scheduler_test
// package's end-to-end cases.
func TestHandleCompletedSubtxnForwardsToCoordinator(t *testing.T) {
	cfg := config.Default()
	transport := &recordingTransport{}
	s := New(cfg, storage.NewMemStorage(), lockmgr.New(cfg), nil, noopDispatcher{}, transport)

	sub := message.CompletedSubtxn{Txn: &txn.Transaction{ID: 9}, Partition: 1}
	s.HandleCompletedSubtxn(sub)

	assert.Equal(t, []message.CompletedSubtxn{sub}, transport.replied)
}
