package sim

import (
	"cmp"
	"math"
	"slices"
)

// DefaultHotThreshold is the access count above which an address is hot.
const DefaultHotThreshold uint64 = 100

// HeatAwareMigrationPolicy counts accesses per address and nominates the
// addresses whose count exceeds the hot threshold.
type HeatAwareMigrationPolicy struct {
	threshold uint64
	counts    map[uint64]uint64
}

// NewHeatAwareMigrationPolicy creates a heat-aware policy with the given threshold.
func NewHeatAwareMigrationPolicy(threshold uint64) *HeatAwareMigrationPolicy {
	return &HeatAwareMigrationPolicy{threshold: threshold, counts: make(map[uint64]uint64)}
}

func (p *HeatAwareMigrationPolicy) Name() string { return "heat-aware" }

// Threshold returns the hot threshold.
func (p *HeatAwareMigrationPolicy) Threshold() uint64 { return p.threshold }

// RecordAccess counts one access to addr.
func (p *HeatAwareMigrationPolicy) RecordAccess(addr uint64) { p.counts[addr]++ }

// Count returns the accesses recorded for addr since it was last nominated.
func (p *HeatAwareMigrationPolicy) Count(addr uint64) uint64 { return p.counts[addr] }

func (p *HeatAwareMigrationPolicy) ComputeOnce(*Controller) int {
	for _, n := range p.counts {
		if n > p.threshold {
			return 1
		}
	}
	return 0
}

// MigrationList nominates every hot address, lowest first, and resets its count.
func (p *HeatAwareMigrationPolicy) MigrationList(c *Controller) []MigrationCandidate {
	size := c.PageType().Size()
	var out []MigrationCandidate
	for addr, n := range p.counts {
		if n > p.threshold {
			out = append(out, MigrationCandidate{Addr: addr, Size: size, Target: -1})
		}
	}
	slices.SortFunc(out, func(a, b MigrationCandidate) int { return cmp.Compare(a.Addr, b.Addr) })
	for _, m := range out {
		delete(p.counts, m.Addr)
	}
	return out
}

// MGLRUPolicy approximates multi-generational LRU: once local memory passes
// 90% it demotes the oldest generation of local pages to the coldest expander.
type MGLRUPolicy struct {
	target int
}

func (p *MGLRUPolicy) Name() string { return "mglru" }

// mglruGenerations is the number of generations local pages are split into.
const mglruGenerations = 4

// Target returns the expander chosen by the last ComputeOnce, or -1.
func (p *MGLRUPolicy) Target() int { return p.target }

func (p *MGLRUPolicy) ComputeOnce(c *Controller) int {
	p.target = -1
	if localHasRoom(c) {
		return 0
	}
	pt := c.PageType()
	lowest := uint64(math.MaxUint64)
	for i, e := range c.Expanders() {
		if !usable(e, pt) {
			continue
		}
		total, pages := e.Occupancy().AccessCountStats()
		avg := uint64(0)
		if pages > 0 {
			avg = total / uint64(pages)
		}
		if p.target == -1 || avg < lowest {
			p.target, lowest = i, avg
		}
	}
	if p.target == -1 || c.Local().Len() == 0 {
		return 0
	}
	return 1
}

// MigrationList nominates the oldest quarter of local pages (at least one)
// toward the expander picked by ComputeOnce.
func (p *MGLRUPolicy) MigrationList(c *Controller) []MigrationCandidate {
	if p.target < 0 {
		return nil
	}
	records := c.Local().Records()
	slices.SortStableFunc(records, func(a, b OccupancyRecord) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	n := max(len(records)/mglruGenerations, 1)
	n = min(n, len(records))
	size := c.PageType().Size()
	out := make([]MigrationCandidate, 0, n)
	for _, rec := range records[:n] {
		out = append(out, MigrationCandidate{Addr: rec.Address, Size: size, Target: p.target})
	}
	return out
}
