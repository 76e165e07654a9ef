package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cxlmemsim/cxlmemsim/sim"
)

// autoDB is the --db value given without an argument: pick a unique file name.
const autoDB = "auto"

// runOptions holds the flags of `run`.
type runOptions struct {
	configPath  string
	topology    string
	capacity    string
	latency     string
	bandwidth   string
	dramLatency float64
	mode        string
	interval    int

	allocation   string
	migration    string
	paging       string
	caching      string
	hotThreshold uint64

	tracePath   string
	accesses    int
	pattern     string
	hotFraction float64
	seed        int64

	db          string
	monitorPort int
	logLevel    string
}

// parseFloatList parses a comma-separated list of non-negative numbers.
func parseFloatList(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", part, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("value %v must be non-negative", v)
		}
		out = append(out, v)
	}
	return out, nil
}

// parsePairs parses "r1,w1,r2,w2,..." into (read, write) pairs.
func parsePairs(s string) ([][2]float64, error) {
	vals, err := parseFloatList(s)
	if err != nil {
		return nil, err
	}
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("expected read,write pairs, got %d values", len(vals))
	}
	pairs := make([][2]float64, len(vals)/2)
	for i := range pairs {
		pairs[i] = [2]float64{vals[2*i], vals[2*i+1]}
	}
	return pairs, nil
}

// overlayExpanders applies the list flags to cfg. capacities (local first)
// resizes the expander list; latency and bandwidth pairs must then match it.
func overlayExpanders(cfg *sim.Config, capacities []float64, latencies, bandwidths [][2]float64) error {
	if capacities != nil {
		if len(capacities) < 2 {
			return fmt.Errorf("--capacity needs the local capacity and at least one expander, got %d values", len(capacities))
		}
		cfg.Local.Capacity = capacities[0]
		tmpl := sim.DefaultConfig().Expanders[0]
		if len(cfg.Expanders) > 0 {
			tmpl = cfg.Expanders[len(cfg.Expanders)-1]
		}
		resized := make([]sim.ExpanderConfig, len(capacities)-1)
		for i := range resized {
			resized[i] = tmpl
			if i < len(cfg.Expanders) {
				resized[i] = cfg.Expanders[i]
			}
			resized[i].Capacity = capacities[i+1]
		}
		cfg.Expanders = resized
	}
	if latencies != nil {
		if len(latencies) != len(cfg.Expanders) {
			return fmt.Errorf("--latency has %d pairs for %d expanders", len(latencies), len(cfg.Expanders))
		}
		for i, p := range latencies {
			cfg.Expanders[i].ReadLatency, cfg.Expanders[i].WriteLatency = p[0], p[1]
		}
	}
	if bandwidths != nil {
		if len(bandwidths) != len(cfg.Expanders) {
			return fmt.Errorf("--bandwidth has %d pairs for %d expanders", len(bandwidths), len(cfg.Expanders))
		}
		for i, p := range bandwidths {
			cfg.Expanders[i].ReadBandwidth, cfg.Expanders[i].WriteBandwidth = p[0], p[1]
		}
	}
	return nil
}

// buildConfig starts from the YAML file (or the defaults) and overrides every
// flag the user set. changed reports whether a flag was set.
func buildConfig(o runOptions, changed func(string) bool) (*sim.Config, error) {
	cfg := sim.DefaultConfig()
	if o.configPath != "" {
		loaded, err := sim.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if changed("topology") {
		cfg.Topology = o.topology
	}
	if changed("seed") {
		cfg.Seed = o.seed
	}
	if changed("dramlatency") {
		cfg.Local.DRAMLatency = o.dramLatency
	}
	if changed("mode") {
		cfg.Local.PageType = o.mode
	}
	if changed("interval") {
		cfg.Local.Epoch = o.interval
	}
	if changed("allocation") {
		cfg.Policies.Allocation = o.allocation
	}
	if changed("migration") {
		cfg.Policies.Migration = o.migration
	}
	if changed("paging") {
		cfg.Policies.Paging = o.paging
	}
	if changed("caching") {
		cfg.Policies.Caching = o.caching
	}
	if changed("hot-threshold") {
		hot := o.hotThreshold
		cfg.Policies.HotThreshold = &hot
	}

	var capacities []float64
	var latencies, bandwidths [][2]float64
	var err error
	if changed("capacity") {
		if capacities, err = parseFloatList(o.capacity); err != nil {
			return nil, fmt.Errorf("--capacity: %w", err)
		}
	}
	if changed("latency") {
		if latencies, err = parsePairs(o.latency); err != nil {
			return nil, fmt.Errorf("--latency: %w", err)
		}
	}
	if changed("bandwidth") {
		if bandwidths, err = parsePairs(o.bandwidth); err != nil {
			return nil, fmt.Errorf("--bandwidth: %w", err)
		}
	}
	if err := overlayExpanders(&cfg, capacities, latencies, bandwidths); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
