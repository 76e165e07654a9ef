// Package testutil provides shared test infrastructure for the simulator.
// It sits at the module root so both sim/ and cmd/ tests can import it.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// StandardTopology is the reference tree: expander 1 under the root, 2 and 3
// under a child switch.
const StandardTopology = "(1,(2,3))"

// StandardConfigYAML configures three 20 MiB expanders with a 1 MiB local
// tier under StandardTopology.
const StandardConfigYAML = `topology: "(1,(2,3))"
seed: 42
local:
  capacity: 1
  page_type: p
  epoch: 5
  dram_latency: 110
policies:
  allocation: interleave
  migration: heat-aware
  hot_threshold: 3
expanders:
  - {read_latency: 100, write_latency: 150, read_bandwidth: 50, write_bandwidth: 50, capacity: 20}
  - {read_latency: 100, write_latency: 300, read_bandwidth: 50, write_bandwidth: 50, capacity: 20}
  - {read_latency: 100, write_latency: 300, read_bandwidth: 50, write_bandwidth: 50, capacity: 20}
`

// WriteFile writes content to name inside a per-test temp dir and returns the path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
