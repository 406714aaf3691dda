package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTraceRecordAppends(t *testing.T) {
	var tr EventTrace
	tr.Record(EventAccepted, 1)
	tr.Record(EventDispatched, 1)
	assert.Equal(t, []Event{EventAccepted, EventDispatched}, tr.Events)
	assert.Equal(t, []uint32{1, 1}, tr.Machine)
}

func TestEventTraceMergeFromAppendsInOrder(t *testing.T) {
	batchTrace := EventTrace{Events: []Event{EventEnterInterleaverInBatch}, Machine: []uint32{0}}
	txnTrace := EventTrace{Events: []Event{EventAccepted}, Machine: []uint32{1}}

	txnTrace.MergeFrom(batchTrace)
	assert.Equal(t, []Event{EventAccepted, EventEnterInterleaverInBatch}, txnTrace.Events)
}

func TestRecordTxnAndBatchEventHelpers(t *testing.T) {
	tx := &Transaction{}
	RecordTxnEvent(tx, EventExitScheduler, 2)
	assert.Equal(t, []Event{EventExitScheduler}, tx.Events.Events)

	b := &Batch{}
	RecordBatchEvent(b, EventExitInterleaver, 2)
	assert.Equal(t, []Event{EventExitInterleaver}, b.Events.Events)
}
