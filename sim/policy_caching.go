package sim

import "slices"

// FIFOPolicy evicts the oldest local record once local memory is full, making
// room to cache the remote access.
type FIFOPolicy struct{}

func (p *FIFOPolicy) Name() string { return "fifo" }

func (p *FIFOPolicy) ComputeOnce(c *Controller) int {
	if c.LocalUsedMiB() < c.Capacity() {
		return 0
	}
	oldest, ok := c.Local().Oldest()
	if !ok {
		return 0
	}
	c.Local().Remove(oldest.Address)
	c.Cache().Invalidate(oldest.Address)
	return 1
}

const (
	// DefaultFrequencyThreshold is the access count at which an address is worth caching.
	DefaultFrequencyThreshold uint64 = 100
	// DefaultCleanupInterval is the time between invalidation sweeps.
	DefaultCleanupInterval uint64 = 10_000_000
)

// FrequencyInvalidationPolicy caches addresses accessed at least threshold
// times. Every interval time units it invalidates the cold addresses from the
// controller's cache and starts counting afresh.
type FrequencyInvalidationPolicy struct {
	threshold   uint64
	interval    uint64
	lastCleanup uint64
	counts      map[uint64]uint64
}

// NewFrequencyInvalidationPolicy creates a frequency-based caching policy.
func NewFrequencyInvalidationPolicy(threshold, interval uint64) *FrequencyInvalidationPolicy {
	return &FrequencyInvalidationPolicy{
		threshold: threshold,
		interval:  interval,
		counts:    make(map[uint64]uint64),
	}
}

func (p *FrequencyInvalidationPolicy) Name() string { return "frequency" }

// LastCleanup returns the timestamp of the last invalidation sweep.
func (p *FrequencyInvalidationPolicy) LastCleanup() uint64 { return p.lastCleanup }

// Count returns the accesses counted for addr since the last sweep.
func (p *FrequencyInvalidationPolicy) Count(addr uint64) uint64 { return p.counts[addr] }

func (p *FrequencyInvalidationPolicy) ComputeOnce(c *Controller) int {
	a := c.LastAccess()
	p.counts[a.Address]++
	hot := p.counts[a.Address] >= p.threshold

	if saturatingSub(a.Timestamp, p.lastCleanup) >= p.interval {
		for _, addr := range p.InvalidationList() {
			c.Cache().Invalidate(addr)
		}
		clear(p.counts)
		p.lastCleanup = a.Timestamp
	}
	if hot {
		return 1
	}
	return 0
}

// InvalidationList returns the counted addresses below the threshold, lowest first.
func (p *FrequencyInvalidationPolicy) InvalidationList() []uint64 {
	var out []uint64
	for addr, n := range p.counts {
		if n < p.threshold {
			out = append(out, addr)
		}
	}
	slices.Sort(out)
	return out
}
