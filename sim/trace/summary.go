package trace

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Epochs             int
	MeanDelay          float64
	StdDevDelay        float64
	P99Delay           float64
	MaxCongestion      float64
	TotalConflicts     uint64
	Local              uint64
	Remote             uint64
	Migrations         int
	MigrationsByTarget map[string]int // destination → count
}

// RemoteShare returns the fraction of accesses served remotely.
func (s *TraceSummary) RemoteShare() float64 {
	if s.Local+s.Remote == 0 {
		return 0
	}
	return float64(s.Remote) / float64(s.Local+s.Remote)
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		MigrationsByTarget: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.Epochs = len(st.Epochs)
	if len(st.Epochs) > 0 {
		delays := make([]float64, len(st.Epochs))
		for i, e := range st.Epochs {
			delays[i] = e.InjectedDelay
			summary.TotalConflicts += e.Conflicts
			summary.Local += e.Local
			summary.Remote += e.Remote
			summary.MaxCongestion = max(summary.MaxCongestion, e.Congestion)
		}
		summary.MeanDelay, summary.StdDevDelay = stat.MeanStdDev(delays, nil)
		if len(delays) == 1 {
			summary.StdDevDelay = 0
		}
		slices.Sort(delays)
		summary.P99Delay = stat.Quantile(0.99, stat.Empirical, delays, nil)
	}

	summary.Migrations = len(st.Migrations)
	for _, m := range st.Migrations {
		summary.MigrationsByTarget[m.To]++
	}
	return summary
}
