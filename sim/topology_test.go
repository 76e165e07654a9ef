package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTopology(t *testing.T, n int, desc string) *Topology {
	t.Helper()
	topo := NewTopology(DefaultCongestionLatency, nil)
	for i := 0; i < n; i++ {
		topo.InsertEndPoint(NewExpander(testExpanderConfig))
	}
	require.NoError(t, topo.ConstructTopo(desc))
	return topo
}

func TestConstructTopo_StandardTree(t *testing.T) {
	// GIVEN three registered expanders
	// WHEN "(1,(2,3))" is constructed
	topo := newTestTopology(t, 3, "(1,(2,3))")

	// THEN expander 1 hangs off the root and 2, 3 off one child switch
	require.Len(t, topo.Switches, 2)
	root := topo.Root()
	assert.Equal(t, 0, root.ID)
	require.Len(t, root.ChildExpanders(), 1)
	assert.Equal(t, 0, root.ChildExpanders()[0].ID)
	child := root.ChildSwitches()
	require.Len(t, child, 1)
	assert.Equal(t, 1, child[0].ID)
	ids := []int{}
	for _, e := range child[0].ChildExpanders() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, "(1,(2,3))", topo.String())
}

func TestConstructTopo_WellFormed_AllLeavesReachableNoOrphans(t *testing.T) {
	tests := []struct {
		desc   string
		n      int
		leaves int
	}{
		{"1", 1, 1},
		{"(1)", 1, 1},
		{"(1,2,3)", 3, 3},
		{"(1,(2,3))", 3, 3},
		{"((1),(2,(3)))", 3, 3},
		{"(2,(4,(1)),3)", 4, 4},
		{" ( 1 , ( 2 ) ) ", 2, 2},
		{"(1,(3))", 3, 2},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			topo := newTestTopology(t, tc.n, tc.desc)

			// THEN DFS reaches exactly the leaves and every switch has a child
			endpoints := topo.Endpoints()
			assert.Len(t, endpoints, tc.leaves)
			seen := map[int]bool{}
			for _, e := range endpoints {
				assert.False(t, seen[e.ID], "expander %d reached twice", e.ID)
				seen[e.ID] = true
			}
			topo.Walk(func(sw *Switch, _ int) {
				assert.NotZero(t, len(sw.ChildExpanders())+len(sw.ChildSwitches()), "orphan switch %d", sw.ID)
			})
		})
	}
}

func TestConstructTopo_StringRoundTrip(t *testing.T) {
	for _, desc := range []string{"(1,(2,3))", "((1),(2,(3)))", "(3,1,2)"} {
		topo := newTestTopology(t, 3, desc)
		assert.Equal(t, desc, topo.String())
	}
}

func TestConstructTopo_Malformed_ReturnsErrorAndBuildsNothing(t *testing.T) {
	tests := []struct {
		name string
		desc string
	}{
		{"extra close", "(1,2))"},
		{"missing close", "((1,2)"},
		{"double comma", "(1,,2)"},
		{"leading comma", "(,1)"},
		{"trailing comma", "(1,)"},
		{"empty group", "(1,())"},
		{"empty root", "()"},
		{"two roots", "(1)(2)"},
		{"out of range", "(1,4)"},
		{"zero leaf", "(0)"},
		{"duplicate leaf", "(1,1)"},
		{"unknown character", "(a)"},
		{"missing comma", "(1 2)"},
		{"bare list", "1,2"},
		{"empty", ""},
		{"close first", ")1("},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN three registered expanders
			topo := NewTopology(DefaultCongestionLatency, nil)
			for i := 0; i < 3; i++ {
				topo.InsertEndPoint(NewExpander(testExpanderConfig))
			}

			// WHEN a malformed description is constructed
			err := topo.ConstructTopo(tc.desc)

			// THEN it fails and leaves the arena untouched
			require.Error(t, err)
			assert.Len(t, topo.Switches, 1)
			assert.Empty(t, topo.Endpoints())
			for _, e := range topo.Expanders {
				assert.Equal(t, -1, e.ID)
			}
			// AND a valid description still works afterwards
			assert.NoError(t, topo.ConstructTopo("(1,(2,3))"))
		})
	}
}

func TestConstructTopo_Twice_Rejected(t *testing.T) {
	topo := newTestTopology(t, 1, "(1)")
	assert.ErrorIs(t, topo.ConstructTopo("(1)"), ErrTopologyConstructed)
}

func TestTopology_ExpanderLookup(t *testing.T) {
	topo := newTestTopology(t, 3, "(1,(3))")

	e, ok := topo.Expander(2)
	require.True(t, ok)
	assert.Equal(t, 2, e.ID)

	_, ok = topo.Expander(1) // registered but not placed
	assert.False(t, ok)
	_, ok = topo.Expander(-1)
	assert.False(t, ok)
	_, ok = topo.Expander(7)
	assert.False(t, ok)
}

func TestTopology_Walk_Depths(t *testing.T) {
	topo := newTestTopology(t, 3, "(1,(2,(3)))")
	depths := map[int]int{}
	topo.Walk(func(sw *Switch, depth int) { depths[sw.ID] = depth })
	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 2}, depths)
}
