// Package message defines the internal wire messages exchanged between
// modules (Sequencer, Interleaver, Scheduler, Worker[i], Server) and the
// Channel addressing scheme they are sent over. Messages are plain Go
// structs carried in a tagged envelope rather than a generated protobuf
// schema, matching the shape of kv/raftstore/message.Msg in the teacher
// repository (Type + opaque payload) rather than introducing build-time
// codegen this repository has no way to run.
package message

import "fmt"

// Channel identifies a logical destination within a partition-local process.
// Worker channels are WorkerChannelBase + worker index.
type Channel int

const (
	ChannelServer Channel = iota
	ChannelForwarder
	ChannelSequencer
	ChannelInterleaver
	ChannelScheduler
	// WorkerChannelBase is the first of NumWorkers contiguous worker
	// channels: WorkerChannelBase+0, WorkerChannelBase+1, ...
	WorkerChannelBase
)

func (c Channel) String() string {
	switch c {
	case ChannelServer:
		return "server"
	case ChannelForwarder:
		return "forwarder"
	case ChannelSequencer:
		return "sequencer"
	case ChannelInterleaver:
		return "interleaver"
	case ChannelScheduler:
		return "scheduler"
	default:
		if c >= WorkerChannelBase {
			return fmt.Sprintf("worker[%d]", c-WorkerChannelBase)
		}
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// WorkerChannel returns the Channel for worker index i.
func WorkerChannel(i uint32) Channel {
	return WorkerChannelBase + Channel(i)
}

// Type tags the payload carried by an Envelope so a receiving module's
// HandleInternalRequest/HandleInternalResponse switch can dispatch on it
// without a type assertion chain at every call site.
type Type int

const (
	TypeLocalQueueOrder Type = iota
	TypeForwardBatchData
	TypeForwardBatchOrder
	TypeForwardTxn
	TypeRemoteReadResult
	TypeWorkerDispatch
	TypeWorkerResponse
	TypeCompletedSubtxn
	TypeStatsRequest
	TypeStatsResponse
)

// Envelope wraps a from/to address pair around a tagged payload, matching
// the (from_machine_id, to_channel) envelope spec.md §5 requires.
type Envelope struct {
	Type        Type
	FromMachine uint32
	Payload     interface{}
}
