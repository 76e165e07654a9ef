package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// RouteResult is the outcome of offering an access to a topology node.
type RouteResult int

const (
	// MissRoute means the node does not own the target device; try siblings.
	MissRoute RouteResult = iota
	// Store means a new occupancy record was created.
	Store
	// Load means an existing record was re-referenced.
	Load
)

func (r RouteResult) String() string {
	switch r {
	case MissRoute:
		return "miss"
	case Store:
		return "store"
	case Load:
		return "load"
	default:
		return fmt.Sprintf("RouteResult(%d)", int(r))
	}
}

const (
	// accessWindow bounds the recent access set returned by GetAccess.
	accessWindow uint64 = 1000
	// bandwidthWindow is the 20ms window bandwidth is measured over, in time units (ns).
	bandwidthWindow uint64 = 20_000_000
	bandwidthWindowSeconds = 0.02
	gib                    = 1024.0 * 1024.0 * 1024.0
)

// Latency holds read and write latency in ns.
type Latency struct {
	Read  float64 `json:"read"`
	Write float64 `json:"write"`
}

// Bandwidth holds read and write bandwidth in GB/s.
type Bandwidth struct {
	Read  float64 `json:"read"`
	Write float64 `json:"write"`
}

// ExpanderConfig describes one CXL memory expander.
type ExpanderConfig struct {
	ReadLatency    float64 `yaml:"read_latency"`    // ns
	WriteLatency   float64 `yaml:"write_latency"`   // ns
	ReadBandwidth  float64 `yaml:"read_bandwidth"`  // GB/s
	WriteBandwidth float64 `yaml:"write_bandwidth"` // GB/s
	Capacity       float64 `yaml:"capacity"`        // MiB of modeled occupancy
}

// Validate checks the expander parameters are usable.
func (c ExpanderConfig) Validate() error {
	if c.ReadLatency <= 0 || c.WriteLatency <= 0 {
		return fmt.Errorf("expander latencies must be > 0, got read=%v write=%v", c.ReadLatency, c.WriteLatency)
	}
	if c.ReadBandwidth < 0 || c.WriteBandwidth < 0 {
		return fmt.Errorf("expander bandwidths must be non-negative, got read=%v write=%v", c.ReadBandwidth, c.WriteBandwidth)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("expander capacity must be non-negative, got %v", c.Capacity)
	}
	return nil
}

// Expander is a leaf CXL memory device with fixed latency and bandwidth.
// It tracks which addresses currently reside on it.
type Expander struct {
	ID        int
	Latency   Latency
	Bandwidth Bandwidth
	Capacity  float64 // MiB

	occupancy     *OccupancyTable
	counter       ExpanderCounter
	lastTimestamp atomic.Uint64

	mu          sync.Mutex // guards lastCounter, epoch, rng
	lastCounter ExpanderEvents
	epoch       int
	rng         *rand.Rand
}

// NewExpander creates an unplaced expander (ID -1).
func NewExpander(cfg ExpanderConfig) *Expander {
	return &Expander{
		ID:        -1,
		Latency:   Latency{Read: cfg.ReadLatency, Write: cfg.WriteLatency},
		Bandwidth: Bandwidth{Read: cfg.ReadBandwidth, Write: cfg.WriteBandwidth},
		Capacity:  cfg.Capacity,
		occupancy: NewOccupancyTable(),
		rng:       rand.New(rand.NewSource(0)),
	}
}

// Occupancy exposes the expander's occupancy table.
func (e *Expander) Occupancy() *OccupancyTable { return e.occupancy }

// Counter exposes the expander's event counters.
func (e *Expander) Counter() *ExpanderCounter { return &e.counter }

// LastTimestamp returns the newest timestamp inserted on this expander.
func (e *Expander) LastTimestamp() uint64 { return e.lastTimestamp.Load() }

// UsedMiB returns modeled occupancy at the given page granularity.
func (e *Expander) UsedMiB(pt PageType) float64 {
	return usedMiB(e.occupancy.Len(), pt)
}

// Full reports whether the expander has no modeled capacity left.
func (e *Expander) Full(pt PageType) bool {
	return e.UsedMiB(pt) >= e.Capacity
}

// SetEpoch sets the epoch length (in thousands of time units).
func (e *Expander) SetEpoch(epoch int) {
	e.mu.Lock()
	e.epoch = epoch
	e.mu.Unlock()
}

// CounterDelta returns the counter change since the last GetAccess.
func (e *Expander) CounterDelta() ExpanderEvents {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter.Snapshot().Sub(e.lastCounter)
}

// place assigns the expander's identity once topology construction reaches it.
func (e *Expander) place(id int, rng *rand.Rand) {
	e.ID = id
	e.mu.Lock()
	if rng != nil {
		e.rng = rng
	}
	e.mu.Unlock()
}

// Insert offers an access to this expander. Only acts when target == ID.
func (e *Expander) Insert(timestamp, tid, physAddr, virtAddr uint64, target int) RouteResult {
	if target != e.ID {
		return MissRoute
	}
	for {
		last := e.lastTimestamp.Load()
		if timestamp <= last || e.lastTimestamp.CompareAndSwap(last, timestamp) {
			break
		}
	}
	if physAddr == 0 {
		e.counter.Store.Increment()
		return Store
	}
	if e.occupancy.Touch(timestamp, physAddr) {
		e.counter.Load.Increment()
		return Load
	}
	e.counter.Store.Increment()
	return Store
}

// GetAccess returns the records newer than timestamp minus the access window
// and snapshots the counters for delta computation.
func (e *Expander) GetAccess(timestamp uint64) []Access {
	e.mu.Lock()
	e.lastCounter = e.counter.Snapshot()
	e.mu.Unlock()
	return e.occupancy.Since(saturatingSub(timestamp, accessWindow))
}

// CalculateLatency averages the flat device latency over the accesses resident here.
func (e *Expander) CalculateLatency(accesses []Access, dramLatency float64) float64 {
	total := 0.0
	matched := 0
	for _, a := range accesses {
		if !e.occupancy.Contains(a.Address) {
			continue
		}
		total += (e.Latency.Read+e.Latency.Write)/2.0 + dramLatency*0.1
		matched++
	}
	if matched == 0 {
		return 0.0
	}
	return total / float64(matched)
}

// CalculateBandwidth converts the cacheline traffic of the last 20ms into GB/s,
// clamped to the device's combined read and write bandwidth.
func (e *Expander) CalculateBandwidth(accesses []Access) float64 {
	if len(accesses) == 0 {
		return 0.0
	}
	var current uint64
	for _, a := range accesses {
		current = max(current, a.Timestamp)
	}
	windowStart := saturatingSub(current, bandwidthWindow)

	var totalData uint64
	for _, a := range accesses {
		if a.Timestamp >= windowStart {
			totalData += CachelineSize
		}
	}
	bw := float64(totalData) / bandwidthWindowSeconds / gib
	return min(bw, e.Bandwidth.Read+e.Bandwidth.Write)
}

// DeleteEntry models kernel invalidation traffic over [addr, addr+length]:
// resident records are touched rather than removed.
func (e *Expander) DeleteEntry(addr, length uint64) {
	touched := e.occupancy.TouchRange(addr, addr+length, e.lastTimestamp.Load())
	e.counter.Load.Increment()
	if touched > 0 {
		logrus.Debugf("expander %d: invalidation touched %d records in [%#x, +%d]", e.ID, touched, addr, length)
	}
}

// FreeStats drops each record with probability one half, simulating the
// allocator releasing backing memory.
func (e *Expander) FreeStats(size float64) {
	e.mu.Lock()
	removed := e.occupancy.RemoveIf(func(OccupancyRecord) bool {
		return e.rng.Intn(2) == 1
	})
	e.mu.Unlock()
	logrus.Debugf("expander %d: freed %d records (observed %.0f bytes)", e.ID, removed, size)
}

func (e *Expander) String() string {
	return fmt.Sprintf("expander_%d{lat=%.0f/%.0fns bw=%.0f/%.0fGB/s cap=%.0fMiB resident=%d}",
		e.ID, e.Latency.Read, e.Latency.Write, e.Bandwidth.Read, e.Bandwidth.Write,
		e.Capacity, e.occupancy.Len())
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
