package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxlmemsim/cxlmemsim/sim"
	"github.com/cxlmemsim/cxlmemsim/internal/testutil"
)

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestParseFloatList(t *testing.T) {
	got, err := parseFloatList(" 0, 20 ,20,20,")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 20, 20, 20}, got)

	_, err = parseFloatList("1,x")
	assert.Error(t, err)
	_, err = parseFloatList("1,-2")
	assert.Error(t, err)
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs("100,150,200,250")
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{100, 150}, {200, 250}}, got)

	_, err = parsePairs("100,150,200")
	assert.Error(t, err)
}

func TestOverlayExpanders_ResizesFromCapacities(t *testing.T) {
	// GIVEN the default three expanders
	cfg := sim.DefaultConfig()

	// WHEN four expander capacities and matching pairs are given
	err := overlayExpanders(&cfg, []float64{8, 10, 20, 30, 40},
		[][2]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}},
		[][2]float64{{9, 9}, {9, 9}, {9, 9}, {9, 9}})

	// THEN local and every expander are updated
	require.NoError(t, err)
	assert.Equal(t, 8.0, cfg.Local.Capacity)
	require.Len(t, cfg.Expanders, 4)
	assert.Equal(t, 40.0, cfg.Expanders[3].Capacity)
	assert.Equal(t, 7.0, cfg.Expanders[3].ReadLatency)
	assert.Equal(t, 9.0, cfg.Expanders[0].WriteBandwidth)
}

func TestOverlayExpanders_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		capacities []float64
		latencies  [][2]float64
		bandwidths [][2]float64
	}{
		{"local only", []float64{4}, nil, nil},
		{"too few latency pairs", nil, [][2]float64{{1, 2}}, nil},
		{"too many bandwidth pairs", []float64{0, 1}, nil, [][2]float64{{1, 1}, {2, 2}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := sim.DefaultConfig()
			assert.Error(t, overlayExpanders(&cfg, tc.capacities, tc.latencies, tc.bandwidths))
		})
	}
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	// GIVEN the standard YAML and a few flags set on the command line
	path := testutil.WriteFile(t, "sim.yaml", testutil.StandardConfigYAML)
	o := runOptions{
		configPath: path,
		topology:   "(1,2,3)",
		capacity:   "2,20,20,20",
		mode:       "c",
		migration:  "mglru",
		seed:       7,
	}

	// WHEN the config is built
	cfg, err := buildConfig(o, changedSet("topology", "capacity", "mode", "migration", "seed"))

	// THEN flags win and the file supplies the rest
	require.NoError(t, err)
	assert.Equal(t, "(1,2,3)", cfg.Topology)
	assert.Equal(t, 2.0, cfg.Local.Capacity)
	assert.Equal(t, "c", cfg.Local.PageType)
	assert.Equal(t, "mglru", cfg.Policies.Migration)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 300.0, cfg.Expanders[1].WriteLatency)
	require.NotNil(t, cfg.Policies.HotThreshold)
	assert.Equal(t, uint64(3), *cfg.Policies.HotThreshold)
}

func TestBuildConfig_UnchangedFlagsKeepDefaults(t *testing.T) {
	cfg, err := buildConfig(runOptions{topology: "ignored"}, changedSet())
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig(), *cfg)
}

func TestBuildConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		o       runOptions
		changed []string
	}{
		{"unknown policy", runOptions{allocation: "random"}, []string{"allocation"}},
		{"bad capacity", runOptions{capacity: "a,b"}, []string{"capacity"}},
		{"odd latency list", runOptions{latency: "1,2,3"}, []string{"latency"}},
		{"zero interval", runOptions{interval: 0}, []string{"interval"}},
		{"missing config", runOptions{configPath: "/nonexistent/sim.yaml"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildConfig(tc.o, changedSet(tc.changed...))
			assert.Error(t, err)
		})
	}
}
