package sim

import "slices"

// hugePageRun is the number of contiguous pages that justifies the next page size.
const hugePageRun = 512

// HugePagePolicy promotes the controller's page size (Page → 2M → 1G) once
// local occupancy holds a run of hugePageRun contiguous pages of the current size.
type HugePagePolicy struct{}

func (p *HugePagePolicy) Name() string { return "hugepage" }

func (p *HugePagePolicy) ComputeOnce(c *Controller) int {
	var next PageType
	switch c.PageType() {
	case Page:
		next = HugePage2M
	case HugePage2M:
		next = HugePage1G
	default:
		return 0
	}
	if longestRun(c.Local().Records(), c.PageType().Size()) < hugePageRun {
		return 0
	}
	c.SetPageType(next)
	return 1
}

// longestRun returns the longest run of addresses spaced exactly step apart.
func longestRun(records []OccupancyRecord, step uint64) int {
	if len(records) == 0 {
		return 0
	}
	addrs := make([]uint64, len(records))
	for i, rec := range records {
		addrs[i] = rec.Address
	}
	slices.Sort(addrs)
	best, run := 1, 1
	for i := 1; i < len(addrs); i++ {
		if addrs[i] == addrs[i-1]+step {
			run++
			best = max(best, run)
		} else {
			run = 1
		}
	}
	return best
}

// FixedPagePolicy never changes the page size.
type FixedPagePolicy struct{}

func (FixedPagePolicy) Name() string { return "fixed" }

func (FixedPagePolicy) ComputeOnce(*Controller) int { return 0 }
