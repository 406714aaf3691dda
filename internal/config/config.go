// Package config holds the process-wide, immutable configuration shared by
// every module in a partition: replica/partition topology, worker pool size,
// and the remaster protocol variant in effect.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// MaxNumMachines bounds the packed MachineIdNum space, matching the source's
// MAX_NUM_MACHINES.
const MaxNumMachines = 1000

// LockTableSizeLimit is the cap on distinct keys a LockManager tracks.
const LockTableSizeLimit = 1_000_000

// DefaultMaxEarlyArrivalQueue bounds EarlyRemoteReads per holder so a
// transaction that never gets dispatched locally cannot accumulate an
// unbounded backlog (Open Question resolution, see SPEC_FULL.md §9).
const DefaultMaxEarlyArrivalQueue = 64

// RemasterProtocol selects which remaster-tracking strategy the Scheduler and
// RemasterManager use. This replaces the source's compile-time
// REMASTER_PROTOCOL_* macros with a runtime-selected value.
type RemasterProtocol int

const (
	// RemasterProtocolNone disables remaster tracking entirely; no
	// RemasterManager is consulted and Accept routes straight to the
	// LockManager.
	RemasterProtocolNone RemasterProtocol = iota
	// RemasterProtocolSimple and RemasterProtocolPerKey both consult a
	// counter-aware RemasterManager before the LockManager. They differ
	// only in the remaster manager's internal indexing strategy, which is
	// not a scheduler/interleaver concern.
	RemasterProtocolSimple
	RemasterProtocolPerKey
	// RemasterProtocolCounterless performs only the trivial
	// new-master-equals-current-master abort check inline in the
	// Scheduler, without a stateful RemasterManager.
	RemasterProtocolCounterless
)

func (p RemasterProtocol) String() string {
	switch p {
	case RemasterProtocolNone:
		return "none"
	case RemasterProtocolSimple:
		return "simple"
	case RemasterProtocolPerKey:
		return "per-key"
	case RemasterProtocolCounterless:
		return "counterless"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// UsesRemasterManager reports whether the Scheduler should route
// SINGLE_HOME/LOCK_ONLY transactions through a RemasterManager before the
// LockManager (§4.6's Accept routing).
func (p RemasterProtocol) UsesRemasterManager() bool {
	return p == RemasterProtocolSimple || p == RemasterProtocolPerKey
}

// UnmarshalText lets RemasterProtocol be decoded directly from TOML.
func (p *RemasterProtocol) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*p = RemasterProtocolNone
	case "simple":
		*p = RemasterProtocolSimple
	case "per-key", "per_key":
		*p = RemasterProtocolPerKey
	case "counterless":
		*p = RemasterProtocolCounterless
	default:
		return errors.Errorf("unknown remaster protocol %q", string(text))
	}
	return nil
}

// Configuration is the shared, immutable topology and tuning knobs for one
// partition-local process.
type Configuration struct {
	NumReplicas   uint32 `toml:"num-replicas"`
	NumPartitions uint32 `toml:"num-partitions"`

	LocalReplica  uint32 `toml:"local-replica"`
	LocalPartition uint32 `toml:"local-partition"`

	NumWorkers uint32 `toml:"num-workers"`

	RemasterProtocol RemasterProtocol `toml:"remaster-protocol"`

	// MaxEarlyArrivalQueue bounds EarlyRemoteReads per transaction holder.
	MaxEarlyArrivalQueue int `toml:"max-early-arrival-queue"`

	// ModulePollTimeout is the timeout used by module event loops when they
	// also need to do periodic bookkeeping; most loops here block directly
	// on a channel receive instead, but this is kept for components that
	// must also tick (e.g. batch-size/latency housekeeping).
	ModulePollTimeout time.Duration `toml:"module-poll-timeout"`
}

// Validate checks that the configuration is internally consistent.
func (c *Configuration) Validate() error {
	if c.NumReplicas == 0 {
		return errors.New("num-replicas must be greater than 0")
	}
	if c.NumPartitions == 0 {
		return errors.New("num-partitions must be greater than 0")
	}
	if c.NumWorkers == 0 {
		return errors.New("num-workers must be greater than 0")
	}
	if c.LocalReplica >= c.NumReplicas {
		return errors.Errorf("local-replica %d out of range [0, %d)", c.LocalReplica, c.NumReplicas)
	}
	if c.LocalPartition >= c.NumPartitions {
		return errors.Errorf("local-partition %d out of range [0, %d)", c.LocalPartition, c.NumPartitions)
	}
	if c.NumReplicas*c.NumPartitions > MaxNumMachines {
		return errors.Errorf("num-replicas * num-partitions (%d) exceeds MaxNumMachines (%d)",
			c.NumReplicas*c.NumPartitions, MaxNumMachines)
	}
	return nil
}

// MakeMachineIdNum packs a (replica, partition) pair into the process-wide
// machine id number used to address a Send.
func (c *Configuration) MakeMachineIdNum(replica, partition uint32) uint32 {
	return c.NumPartitions*replica + partition
}

// UnpackMachineId is the inverse of MakeMachineIdNum.
func (c *Configuration) UnpackMachineId(id uint32) (replica, partition uint32) {
	return id / c.NumPartitions, id % c.NumPartitions
}

// LocalMachineId returns this process's own packed machine id.
func (c *Configuration) LocalMachineId() uint32 {
	return c.MakeMachineIdNum(c.LocalReplica, c.LocalPartition)
}

// Default returns a Configuration with sane single-process defaults, mirroring
// the shape of kv/config.NewDefaultConfig.
func Default() *Configuration {
	return &Configuration{
		NumReplicas:          1,
		NumPartitions:        1,
		LocalReplica:         0,
		LocalPartition:       0,
		NumWorkers:           4,
		RemasterProtocol:     RemasterProtocolNone,
		MaxEarlyArrivalQueue: DefaultMaxEarlyArrivalQueue,
		ModulePollTimeout:    50 * time.Millisecond,
	}
}

// Load reads a Configuration from a TOML file on disk, filling unset fields
// from Default().
func Load(path string) (*Configuration, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Trace(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}
