package sim

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedAllocation sends every access to one expander (or local for -1).
type fixedAllocation struct{ target int }

func (f fixedAllocation) Name() string                { return "fixed-target" }
func (f fixedAllocation) ComputeOnce(*Controller) int { return f.target }

// stubMigration nominates a preset list once.
type stubMigration struct{ list []MigrationCandidate }

func (s *stubMigration) Name() string { return "stub" }

func (s *stubMigration) ComputeOnce(*Controller) int { return len(s.list) }

func (s *stubMigration) MigrationList(*Controller) []MigrationCandidate {
	out := s.list
	s.list = nil
	return out
}

// defaultTestPolicies uses the production defaults with fixed paging so
// page size never changes under a test.
func defaultTestPolicies() PolicySet {
	return PolicySet{
		Allocation: &InterleavePolicy{},
		Migration:  NewHeatAwareMigrationPolicy(DefaultHotThreshold),
		Paging:     FixedPagePolicy{},
		Caching:    &FIFOPolicy{},
	}
}

// standardExpanders are three 20 MiB expanders whose write latencies give
// interleave weights of 5, 2 and 2.
func standardExpanders() []ExpanderConfig {
	return []ExpanderConfig{
		{ReadLatency: 100, WriteLatency: 150, ReadBandwidth: 50, WriteBandwidth: 50, Capacity: 20},
		{ReadLatency: 100, WriteLatency: 300, ReadBandwidth: 50, WriteBandwidth: 50, Capacity: 20},
		{ReadLatency: 100, WriteLatency: 300, ReadBandwidth: 50, WriteBandwidth: 50, Capacity: 20},
	}
}

// newTestController builds a controller over "(1,(2,3))" with the given
// local capacity, policies and expanders (standardExpanders when none given).
func newTestController(t *testing.T, localCapacity float64, ps PolicySet, expanders ...ExpanderConfig) *Controller {
	t.Helper()
	cfg := DefaultControllerConfig()
	cfg.Capacity = localCapacity
	c, err := NewController(cfg, ps)
	require.NoError(t, err)
	if len(expanders) == 0 {
		expanders = standardExpanders()
	}
	for _, e := range expanders {
		c.InsertEndPoint(NewExpander(e))
	}
	desc := "(1,(2,3))"
	if len(expanders) != 3 {
		leaves := make([]string, len(expanders))
		for i := range leaves {
			leaves[i] = strconv.Itoa(i + 1)
		}
		desc = "(" + strings.Join(leaves, ",") + ")"
	}
	require.NoError(t, c.ConstructTopo(desc))
	return c
}

// fillLocal puts n contiguous pages into local occupancy.
func fillLocal(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Local().Touch(uint64(i), uint64(i+1)*PageSize)
	}
}
