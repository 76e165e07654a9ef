package trace

// TraceLevel controls the verbosity of simulation tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEpochs captures epoch records only.
	TraceLevelEpochs TraceLevel = "epochs"
	// TraceLevelDecisions captures epoch records and every migration.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelEpochs:    true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	RunID string
}

// SimulationTrace collects epoch and migration records during a simulation.
type SimulationTrace struct {
	Config     TraceConfig
	Epochs     []EpochRecord
	Migrations []MigrationRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Epochs:     make([]EpochRecord, 0),
		Migrations: make([]MigrationRecord, 0),
	}
}

// RecordEpoch appends an epoch record unless tracing is disabled.
func (st *SimulationTrace) RecordEpoch(record EpochRecord) {
	if st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	if record.RunID == "" {
		record.RunID = st.Config.RunID
	}
	st.Epochs = append(st.Epochs, record)
}

// RecordMigration appends a migration record at the decisions level.
func (st *SimulationTrace) RecordMigration(record MigrationRecord) {
	if st.Config.Level != TraceLevelDecisions {
		return
	}
	if record.RunID == "" {
		record.RunID = st.Config.RunID
	}
	st.Migrations = append(st.Migrations, record)
}
