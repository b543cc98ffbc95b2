package trace

// TraceLevel controls the verbosity of lifecycle tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelLifecycle captures state transitions, boots and faults.
	TraceLevelLifecycle TraceLevel = "lifecycle"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelLifecycle: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// MaxRecords bounds each record slice; the oldest records are discarded
	// once it is reached. Zero keeps everything.
	MaxRecords int
}

// MachineTrace collects lifecycle records of one machine.
type MachineTrace struct {
	Config      TraceConfig
	Transitions []TransitionRecord
	Faults      []FaultRecord
	Boots       []BootRecord
}

// NewMachineTrace creates a MachineTrace ready for recording.
func NewMachineTrace(config TraceConfig) *MachineTrace {
	return &MachineTrace{
		Config:      config,
		Transitions: make([]TransitionRecord, 0),
		Faults:      make([]FaultRecord, 0),
		Boots:       make([]BootRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (mt *MachineTrace) Enabled() bool {
	return mt != nil && mt.Config.Level == TraceLevelLifecycle
}

// RecordTransition appends a state transition record.
func (mt *MachineTrace) RecordTransition(record TransitionRecord) {
	if !mt.Enabled() {
		return
	}
	mt.Transitions = bounded(append(mt.Transitions, record), mt.Config.MaxRecords)
}

// RecordFault appends a fault record.
func (mt *MachineTrace) RecordFault(record FaultRecord) {
	if !mt.Enabled() {
		return
	}
	mt.Faults = bounded(append(mt.Faults, record), mt.Config.MaxRecords)
}

// RecordBoot appends a boot record.
func (mt *MachineTrace) RecordBoot(record BootRecord) {
	if !mt.Enabled() {
		return
	}
	mt.Boots = bounded(append(mt.Boots, record), mt.Config.MaxRecords)
}

func bounded[T any](records []T, limit int) []T {
	if limit <= 0 || len(records) <= limit {
		return records
	}
	return records[len(records)-limit:]
}
