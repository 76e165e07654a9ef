// Package trace records per-epoch measurements and migration decisions of a
// memory-topology simulation.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// LocalLocation names the local DRAM tier in a MigrationRecord.
const LocalLocation = "local"

// EpochRecord captures the aggregate outcome of one epoch.
type EpochRecord struct {
	RunID         string
	Epoch         int
	Timestamp     uint64
	Latency       float64 // flat device latency over the recent access set, ns
	Bandwidth     float64 // GB/s
	Congestion    float64 // switch collision penalty, ns
	Conflicts     uint64
	Local         uint64 // local accesses during the epoch
	Remote        uint64 // remote accesses during the epoch
	InjectedDelay float64
}

// MigrationRecord captures one address moving between tiers.
type MigrationRecord struct {
	RunID     string
	Timestamp uint64
	Address   uint64
	From      string // LocalLocation or "expander_N"
	To        string
}
