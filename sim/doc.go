// Package sim provides the memory-topology simulation core of CXLMemSim.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - expander.go: leaf CXL memory devices and their occupancy tables
//   - switch.go: interior nodes that route accesses down and aggregate latency,
//     bandwidth and congestion up
//   - controller.go: the root of the tree, which classifies every access as
//     local or remote and drives migrations and epochs
//
// # Architecture
//
// Nodes live in a flat arena (topology.go) and refer to their children by
// index. The tree is built once from a bracket description such as
// "(1,(2,3))", where leaf N is the Nth registered expander.
//
// Sub-packages:
//   - sim/trace/: epoch and migration records, summary statistics
//   - sim/recorder/: SQLite persistence of trace records
//   - sim/monitoring/: HTTP API over a running controller
//   - sim/workload/: access streams from CSV traces or synthetic generators
//
// # Key Interfaces
//
// The extension points are four policy roles, selected by name (policy.go):
//   - AllocationPolicy: keep an access local or pick an expander
//   - MigrationPolicy: nominate addresses to move between tiers
//   - PagingPolicy: change the allocation granularity
//   - CachingPolicy: decide whether a remote access is cached
//
// Monitor is the boundary to the PMU sampling layer, which lives outside
// this package.
package sim
