package trace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	// GIVEN no trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN all values are zero
	assert.Equal(t, 0, summary.Epochs)
	assert.Equal(t, 0, summary.Migrations)
	assert.Empty(t, summary.MigrationsByTarget)
	assert.Equal(t, 0.0, summary.RemoteShare())
}

func TestSummarize_SingleEpoch_NoSpread(t *testing.T) {
	// GIVEN one epoch
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEpochs})
	st.RecordEpoch(EpochRecord{InjectedDelay: 250, Congestion: 90, Conflicts: 1, Local: 3, Remote: 1})

	// WHEN summarized
	summary := Summarize(st)

	// THEN the mean is the single delay and the spread is zero
	assert.Equal(t, 250.0, summary.MeanDelay)
	assert.Equal(t, 0.0, summary.StdDevDelay)
	assert.Equal(t, 250.0, summary.P99Delay)
	assert.InDelta(t, 0.25, summary.RemoteShare(), 1e-9)
}

func TestSummarize_DelayStatistics_MeanStdDevAndMax(t *testing.T) {
	// GIVEN epochs with known delays, congestion and conflicts
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEpochs})
	for i, d := range []float64{100, 200, 300} {
		st.RecordEpoch(EpochRecord{Epoch: i, InjectedDelay: d, Congestion: float64(i) * 90, Conflicts: uint64(i)})
	}

	// WHEN summarized
	summary := Summarize(st)

	// THEN mean = 200, sample stddev = 100, p99 = largest delay
	assert.Equal(t, 3, summary.Epochs)
	assert.InDelta(t, 200.0, summary.MeanDelay, 1e-9)
	assert.InDelta(t, 100.0, summary.StdDevDelay, 1e-9)
	assert.Equal(t, 300.0, summary.P99Delay)
	assert.Equal(t, 180.0, summary.MaxCongestion)
	assert.Equal(t, uint64(3), summary.TotalConflicts)
	assert.False(t, math.IsNaN(summary.StdDevDelay))
}

func TestSummarize_MigrationsByTarget_CountsPerDestination(t *testing.T) {
	// GIVEN migrations to two destinations
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordMigration(MigrationRecord{Address: 1, From: LocalLocation, To: "expander_0"})
	st.RecordMigration(MigrationRecord{Address: 2, From: LocalLocation, To: "expander_0"})
	st.RecordMigration(MigrationRecord{Address: 3, From: "expander_0", To: LocalLocation})

	// WHEN summarized
	summary := Summarize(st)

	// THEN the destination histogram reflects the counts
	assert.Equal(t, 3, summary.Migrations)
	assert.Equal(t, 2, summary.MigrationsByTarget["expander_0"])
	assert.Equal(t, 1, summary.MigrationsByTarget[LocalLocation])
}
