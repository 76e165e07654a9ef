package cmd

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/cxlmemsim/cxlmemsim/sim"
	"github.com/cxlmemsim/cxlmemsim/sim/monitoring"
	"github.com/cxlmemsim/cxlmemsim/sim/recorder"
	"github.com/cxlmemsim/cxlmemsim/sim/trace"
	"github.com/cxlmemsim/cxlmemsim/sim/workload"
)

// syntheticStep is the spacing between synthetic accesses in time units.
const syntheticStep = 100

// hotSetPages is the size of the hot set of the hotset pattern.
const hotSetPages = 64

// runSimulation builds the controller, feeds it the access stream and prints
// a summary to w.
func runSimulation(w io.Writer, cfg *sim.Config, o runOptions) error {
	start := time.Now()
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions, RunID: xid.New().String()})
	c, err := sim.NewControllerFromConfig(cfg, sim.WithTrace(st))
	if err != nil {
		return err
	}
	logrus.Infof("starting simulation: %s", c)

	events, err := loadEvents(o, cfg.Seed)
	if err != nil {
		return err
	}

	if o.monitorPort != 0 {
		if _, err := monitoring.NewServer(c).WithPortNumber(o.monitorPort).StartServer(); err != nil {
			return err
		}
	}

	var rec *recorder.SQLiteRecorder
	if o.db != "" {
		path := o.db
		if path == autoDB {
			path = ""
		}
		rec = recorder.NewSQLiteRecorder(path)
		if err := rec.Init(); err != nil {
			return err
		}
	}

	epochs := simulate(c, events, uint64(cfg.Local.Epoch)*sim.EpochTimeUnits)
	logrus.Infof("simulation complete: %d accesses, %d epochs", len(events), len(epochs))

	if rec != nil {
		if err := persistTrace(rec, st); err != nil {
			return err
		}
		logrus.Infof("trace recorded in %s", rec.Path())
	}

	printSummary(w, c, trace.Summarize(st), len(events), time.Since(start))
	return nil
}

// traceWriter is the part of the recorder runSimulation needs.
type traceWriter interface {
	WriteTrace(st *trace.SimulationTrace) error
	Close() error
}

// persistTrace writes st and closes w, closing it even when the write fails.
func persistTrace(w traceWriter, st *trace.SimulationTrace) error {
	err := w.WriteTrace(st)
	return errors.Join(err, w.Close())
}

// loadEvents reads the trace file or generates the synthetic pattern.
func loadEvents(o runOptions, seed int64) ([]workload.AccessEvent, error) {
	if o.tracePath != "" {
		return workload.ReadTrace(o.tracePath)
	}
	switch o.pattern {
	case "sequential":
		return workload.Sequential(o.accesses, sim.PageSize, sim.PageSize, syntheticStep), nil
	case "hotset":
		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed)).ForSubsystem(sim.SubsystemWorkload)
		return workload.HotSet(rng, o.accesses, hotSetPages, o.accesses, o.hotFraction, sim.PageSize, syntheticStep), nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", o.pattern)
	}
}

// simulate feeds events to c and closes an epoch each time the stream
// crosses an epoch boundary, plus a final one at the last timestamp.
func simulate(c *sim.Controller, events []workload.AccessEvent, epochLength uint64) []sim.EpochStats {
	var epochs []sim.EpochStats
	if len(events) == 0 {
		return epochs
	}
	next := events[0].Timestamp + epochLength
	for _, ev := range events {
		for ev.Timestamp >= next {
			epochs = append(epochs, c.Epoch(next))
			next += epochLength
		}
		if ev.Index > 0 {
			c.Insert(ev.Timestamp, ev.TID, ev.PhysAddr, ev.VirtAddr, ev.Index)
		} else {
			c.Access(ev.Timestamp, ev.TID, ev.PhysAddr, ev.VirtAddr)
		}
	}
	epochs = append(epochs, c.Epoch(events[len(events)-1].Timestamp))
	return epochs
}

// printSummary writes the run summary, highlighting headings and totals.
func printSummary(w io.Writer, c *sim.Controller, s *trace.TraceSummary, accesses int, elapsed time.Duration) {
	heading := color.New(color.FgCyan, color.Bold)
	value := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	_, _ = heading.Fprintln(w, "=== CXL Memory Simulation ===")
	fmt.Fprintf(w, "Topology        : %s\n", c.Topology())
	fmt.Fprintf(w, "Policies        : %s/%s/%s/%s\n", c.Policies().Allocation.Name(), c.Policies().Migration.Name(),
		c.Policies().Paging.Name(), c.Policies().Caching.Name())
	fmt.Fprintf(w, "Page type       : %s\n", c.PageType())
	fmt.Fprintf(w, "Accesses        : %s\n", value.Sprint(accesses))
	fmt.Fprintf(w, "Local / remote  : %s / %s (remote share %.1f%%)\n",
		value.Sprint(s.Local), value.Sprint(s.Remote), 100*s.RemoteShare())
	fmt.Fprintf(w, "Epochs          : %d\n", s.Epochs)
	fmt.Fprintf(w, "Injected delay  : mean %.2f ns, stddev %.2f ns, p99 %.2f ns\n", s.MeanDelay, s.StdDevDelay, s.P99Delay)
	fmt.Fprintf(w, "Congestion      : max %.2f ns, %d conflicts\n", s.MaxCongestion, s.TotalConflicts)
	fmt.Fprintf(w, "Migrations      : %d\n", s.Migrations)
	targets := make([]string, 0, len(s.MigrationsByTarget))
	for t := range s.MigrationsByTarget {
		targets = append(targets, t)
	}
	slices.Sort(targets)
	for _, t := range targets {
		fmt.Fprintf(w, "  -> %-12s: %d\n", t, s.MigrationsByTarget[t])
	}

	_, _ = heading.Fprintln(w, "=== Expanders ===")
	pt := c.PageType()
	for _, e := range c.Topology().Endpoints() {
		line := fmt.Sprintf("expander_%d: %d resident, %.1f/%.0f MiB", e.ID, e.Occupancy().Len(), e.UsedMiB(pt), e.Capacity)
		if e.Full(pt) {
			_, _ = warn.Fprintln(w, line+" (full)")
			continue
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Simulation time : %s\n", elapsed.Round(time.Millisecond))
}

// renderTree prints the topology one node per line, indented by depth.
func renderTree(w io.Writer, topo *sim.Topology) {
	fmt.Fprintln(w, topo)
	topo.Walk(func(sw *sim.Switch, depth int) {
		fmt.Fprintf(w, "%*sswitch_%d\n", 2*depth, "", sw.ID)
		for _, e := range sw.ChildExpanders() {
			fmt.Fprintf(w, "%*sexpander_%d\n", 2*depth+2, "", e.ID)
		}
	})
}
