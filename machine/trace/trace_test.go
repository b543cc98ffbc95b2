package trace

import (
	"testing"
)

func TestMachineTrace_RecordTransition_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for lifecycle events
	mt := NewMachineTrace(TraceConfig{Level: TraceLevelLifecycle})

	// WHEN a transition is recorded
	mt.RecordTransition(TransitionRecord{Tick: 3, From: "stopped", To: "booting", Reason: "start"})

	// THEN the trace contains one transition with correct data
	if len(mt.Transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(mt.Transitions))
	}
	if mt.Transitions[0].To != "booting" {
		t.Errorf("expected To=booting, got %s", mt.Transitions[0].To)
	}
	if mt.Transitions[0].Tick != 3 {
		t.Errorf("expected tick 3, got %d", mt.Transitions[0].Tick)
	}
}

func TestMachineTrace_LevelNone_RecordsNothing(t *testing.T) {
	// GIVEN a trace with tracing disabled
	mt := NewMachineTrace(TraceConfig{Level: TraceLevelNone})

	// WHEN records of every kind are appended
	mt.RecordTransition(TransitionRecord{To: "running"})
	mt.RecordFault(FaultRecord{Kind: "budget"})
	mt.RecordBoot(BootRecord{OK: true})

	// THEN nothing is kept
	if len(mt.Transitions)+len(mt.Faults)+len(mt.Boots) != 0 {
		t.Errorf("expected empty trace, got %d/%d/%d", len(mt.Transitions), len(mt.Faults), len(mt.Boots))
	}
}

func TestMachineTrace_NilTrace_IsSafe(t *testing.T) {
	var mt *MachineTrace

	// WHEN recording on a nil trace
	mt.RecordFault(FaultRecord{Kind: "runtime"})

	// THEN it is a no-op and reports disabled
	if mt.Enabled() {
		t.Error("nil trace must not be enabled")
	}
}

func TestMachineTrace_MaxRecords_KeepsNewest(t *testing.T) {
	// GIVEN a trace bounded to two records
	mt := NewMachineTrace(TraceConfig{Level: TraceLevelLifecycle, MaxRecords: 2})

	// WHEN three boots are recorded
	for i := int64(1); i <= 3; i++ {
		mt.RecordBoot(BootRecord{Tick: i, OK: true})
	}

	// THEN only the two newest remain, oldest first
	if len(mt.Boots) != 2 {
		t.Fatalf("expected 2 boots, got %d", len(mt.Boots))
	}
	if mt.Boots[0].Tick != 2 || mt.Boots[1].Tick != 3 {
		t.Errorf("expected ticks [2 3], got [%d %d]", mt.Boots[0].Tick, mt.Boots[1].Tick)
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"", true},
		{"none", true},
		{"lifecycle", true},
		{"decisions", false},
		{"verbose", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.want {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
