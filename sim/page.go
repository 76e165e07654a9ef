package sim

import (
	"fmt"
	"strings"
)

// PageType is the allocation granularity the controller models occupancy in.
type PageType int

const (
	Cacheline PageType = iota
	Page
	HugePage2M
	HugePage1G
)

// Byte sizes of each granularity.
const (
	CachelineSize  uint64 = 64
	PageSize       uint64 = 4096
	HugePage2MSize uint64 = 2 * 1024 * 1024
	HugePage1GSize uint64 = 1024 * 1024 * 1024
)

// mib converts byte counts into the MiB unit capacities are expressed in.
const mib = 1024.0 * 1024.0

// Size returns the byte size of one page of this type.
// Panics on a value outside the four enumerated types.
func (p PageType) Size() uint64 {
	switch p {
	case Cacheline:
		return CachelineSize
	case Page:
		return PageSize
	case HugePage2M:
		return HugePage2MSize
	case HugePage1G:
		return HugePage1GSize
	default:
		panic(fmt.Sprintf("unhandled page type %d", int(p)))
	}
}

// Valid reports whether p is one of the four enumerated types.
func (p PageType) Valid() bool { return p >= Cacheline && p <= HugePage1G }

func (p PageType) String() string {
	switch p {
	case Cacheline:
		return "cacheline"
	case Page:
		return "page"
	case HugePage2M:
		return "hugepage-2m"
	case HugePage1G:
		return "hugepage-1g"
	default:
		return fmt.Sprintf("PageType(%d)", int(p))
	}
}

// ParsePageType accepts the CLI short forms ("c", "p") as well as the long names.
func ParsePageType(s string) (PageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "cacheline":
		return Cacheline, nil
	case "", "p", "page":
		return Page, nil
	case "2m", "hugepage-2m":
		return HugePage2M, nil
	case "1g", "hugepage-1g":
		return HugePage1G, nil
	default:
		return Page, fmt.Errorf("unknown page type %q", s)
	}
}

// usedMiB converts a record count into modeled MiB at the given granularity.
func usedMiB(records int, pt PageType) float64 {
	return float64(uint64(records)*pt.Size()) / mib
}
