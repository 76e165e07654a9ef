package sim

// MemStats carries allocator totals observed by the external allocation tracer.
type MemStats struct {
	TotalAllocated  uint64
	TotalFreed      uint64
	CurrentUsage    uint64
	AllocationCount uint64
	FreeCount       uint64
}

// ProcInfo identifies a process or thread discovered by the tracer.
type ProcInfo struct {
	CurrentPID uint32
	CurrentTID uint32
}

// Monitor attaches PMU sampling to a traced process or thread.
// Implementations live outside the simulator core.
type Monitor interface {
	Enable(pid, tid uint32, isProcess bool, pebsPeriod uint64, cpu int32) error
}

// NopMonitor accepts every Enable call and does nothing.
type NopMonitor struct{}

func (NopMonitor) Enable(uint32, uint32, bool, uint64, int32) error { return nil }

// stats trigger constants
const (
	// statsAllocationCeiling disables free-driven eviction for implausible allocator totals.
	statsAllocationCeiling uint64 = 100_000_000_000
	processPEBSPeriod      uint64 = 1000
)
