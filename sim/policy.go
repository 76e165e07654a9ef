package sim

import (
	"errors"
	"fmt"
)

// localThreshold is the share of local capacity below which allocations stay local.
const localThreshold = 0.9

// AllocationPolicy decides where a cache-missing access lands.
// ComputeOnce returns -1 to keep the access local, or the index of the
// expander (in registration order) that should receive it.
type AllocationPolicy interface {
	Name() string
	ComputeOnce(c *Controller) int
}

// MigrationCandidate nominates an address for a move between tiers.
// Target is the preferred destination expander, or -1 for no preference.
type MigrationCandidate struct {
	Addr   uint64
	Size   uint64
	Target int
}

// MigrationPolicy nominates addresses to move between tiers.
// ComputeOnce returns a positive value when MigrationList has work.
type MigrationPolicy interface {
	Name() string
	ComputeOnce(c *Controller) int
	MigrationList(c *Controller) []MigrationCandidate
}

// AccessRecorder is implemented by migration policies that observe every
// access before the controller classifies it.
type AccessRecorder interface {
	RecordAccess(addr uint64)
}

// PagingPolicy may change the controller's page granularity.
// ComputeOnce returns 1 when it changed the page type, 0 otherwise.
type PagingPolicy interface {
	Name() string
	ComputeOnce(c *Controller) int
}

// CachingPolicy decides whether a remote access is also cached.
// ComputeOnce returns non-zero to cache the access.
type CachingPolicy interface {
	Name() string
	ComputeOnce(c *Controller) int
}

// PolicySet holds one policy per role. Every role is required.
type PolicySet struct {
	Allocation AllocationPolicy
	Migration  MigrationPolicy
	Paging     PagingPolicy
	Caching    CachingPolicy
}

// Validate rejects a set with a missing role.
func (ps PolicySet) Validate() error {
	var errs []error
	if ps.Allocation == nil {
		errs = append(errs, errors.New("allocation policy is required"))
	}
	if ps.Migration == nil {
		errs = append(errs, errors.New("migration policy is required"))
	}
	if ps.Paging == nil {
		errs = append(errs, errors.New("paging policy is required"))
	}
	if ps.Caching == nil {
		errs = append(errs, errors.New("caching policy is required"))
	}
	return errors.Join(errs...)
}

// PolicyConfig selects policies by name. Empty names select the defaults.
// Nil pointer fields mean "not set" and keep the policy's default parameter.
type PolicyConfig struct {
	Allocation         string  `yaml:"allocation"`
	Migration          string  `yaml:"migration"`
	Paging             string  `yaml:"paging"`
	Caching            string  `yaml:"caching"`
	HotThreshold       *uint64 `yaml:"hot_threshold"`
	FrequencyThreshold *uint64 `yaml:"frequency_threshold"`
	CleanupInterval    *uint64 `yaml:"cleanup_interval"`
}

// ValidAllocationPolicies is the set of recognized allocation policy names.
// Shared by Validate() and NewAllocationPolicy() to avoid duplication.
var ValidAllocationPolicies = map[string]bool{"": true, "interleave": true, "numa": true}

// ValidMigrationPolicies is the set of recognized migration policy names.
var ValidMigrationPolicies = map[string]bool{"": true, "heat-aware": true, "mglru": true}

// ValidPagingPolicies is the set of recognized paging policy names.
var ValidPagingPolicies = map[string]bool{"": true, "hugepage": true, "fixed": true}

// ValidCachingPolicies is the set of recognized caching policy names.
var ValidCachingPolicies = map[string]bool{"": true, "fifo": true, "frequency": true}

// Validate checks that all policy names and parameter ranges are valid.
func (pc PolicyConfig) Validate() error {
	if !ValidAllocationPolicies[pc.Allocation] {
		return fmt.Errorf("unknown allocation policy %q", pc.Allocation)
	}
	if !ValidMigrationPolicies[pc.Migration] {
		return fmt.Errorf("unknown migration policy %q", pc.Migration)
	}
	if !ValidPagingPolicies[pc.Paging] {
		return fmt.Errorf("unknown paging policy %q", pc.Paging)
	}
	if !ValidCachingPolicies[pc.Caching] {
		return fmt.Errorf("unknown caching policy %q", pc.Caching)
	}
	if pc.CleanupInterval != nil && *pc.CleanupInterval == 0 {
		return errors.New("cleanup_interval must be > 0")
	}
	return nil
}

// NewPolicySet builds one policy per role from cfg.
func NewPolicySet(cfg PolicyConfig) (PolicySet, error) {
	if err := cfg.Validate(); err != nil {
		return PolicySet{}, fmt.Errorf("policy config: %w", err)
	}
	hot := DefaultHotThreshold
	if cfg.HotThreshold != nil {
		hot = *cfg.HotThreshold
	}
	freq, interval := DefaultFrequencyThreshold, DefaultCleanupInterval
	if cfg.FrequencyThreshold != nil {
		freq = *cfg.FrequencyThreshold
	}
	if cfg.CleanupInterval != nil {
		interval = *cfg.CleanupInterval
	}
	return PolicySet{
		Allocation: NewAllocationPolicy(cfg.Allocation),
		Migration:  NewMigrationPolicy(cfg.Migration, hot),
		Paging:     NewPagingPolicy(cfg.Paging),
		Caching:    NewCachingPolicy(cfg.Caching, freq, interval),
	}, nil
}

// NewAllocationPolicy creates an allocation policy by name.
// An empty string defaults to interleave. Panics on unrecognized names.
func NewAllocationPolicy(name string) AllocationPolicy {
	if !ValidAllocationPolicies[name] {
		panic(fmt.Sprintf("unknown allocation policy %q", name))
	}
	switch name {
	case "", "interleave":
		return &InterleavePolicy{}
	case "numa":
		return &NUMAPolicy{}
	default:
		panic(fmt.Sprintf("unhandled allocation policy %q", name))
	}
}

// NewMigrationPolicy creates a migration policy by name.
// An empty string defaults to heat-aware. Panics on unrecognized names.
func NewMigrationPolicy(name string, hotThreshold uint64) MigrationPolicy {
	if !ValidMigrationPolicies[name] {
		panic(fmt.Sprintf("unknown migration policy %q", name))
	}
	switch name {
	case "", "heat-aware":
		return NewHeatAwareMigrationPolicy(hotThreshold)
	case "mglru":
		return &MGLRUPolicy{target: -1}
	default:
		panic(fmt.Sprintf("unhandled migration policy %q", name))
	}
}

// NewPagingPolicy creates a paging policy by name.
// An empty string defaults to hugepage. Panics on unrecognized names.
func NewPagingPolicy(name string) PagingPolicy {
	if !ValidPagingPolicies[name] {
		panic(fmt.Sprintf("unknown paging policy %q", name))
	}
	switch name {
	case "", "hugepage":
		return &HugePagePolicy{}
	case "fixed":
		return FixedPagePolicy{}
	default:
		panic(fmt.Sprintf("unhandled paging policy %q", name))
	}
}

// NewCachingPolicy creates a caching policy by name.
// An empty string defaults to fifo. Panics on unrecognized names.
func NewCachingPolicy(name string, threshold, interval uint64) CachingPolicy {
	if !ValidCachingPolicies[name] {
		panic(fmt.Sprintf("unknown caching policy %q", name))
	}
	switch name {
	case "", "fifo":
		return &FIFOPolicy{}
	case "frequency":
		return NewFrequencyInvalidationPolicy(threshold, interval)
	default:
		panic(fmt.Sprintf("unhandled caching policy %q", name))
	}
}

// localHasRoom reports whether local occupancy is under localThreshold of capacity.
func localHasRoom(c *Controller) bool {
	return c.LocalUsedMiB() < c.Capacity()*localThreshold
}

// usable reports whether an expander is placed and has capacity left.
func usable(e *Expander, pt PageType) bool {
	return e.ID >= 0 && !e.Full(pt)
}
