package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	mt := NewMachineTrace(TraceConfig{Level: TraceLevelLifecycle})

	// WHEN summarized
	summary := Summarize(mt)

	// THEN all counts are zero
	if summary.Transitions != 0 || summary.BootAttempts != 0 || summary.Faults != 0 {
		t.Errorf("expected zero counts, got %+v", summary)
	}
	if len(summary.FaultDistribution) != 0 {
		t.Error("expected empty fault distribution")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.Transitions != 0 || summary.StateEntries == nil {
		t.Errorf("expected initialized zero summary, got %+v", summary)
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with a failed boot, a successful boot and two faults
	mt := NewMachineTrace(TraceConfig{Level: TraceLevelLifecycle})
	mt.RecordBoot(BootRecord{Tick: 1, OK: false, Error: "no firmware found"})
	mt.RecordBoot(BootRecord{Tick: 2, Firmware: "e1", OK: true})
	mt.RecordTransition(TransitionRecord{From: "stopped", To: "booting"})
	mt.RecordTransition(TransitionRecord{From: "booting", To: "running"})
	mt.RecordTransition(TransitionRecord{From: "running", To: "faulted"})
	mt.RecordTransition(TransitionRecord{From: "faulted", To: "booting"})
	mt.RecordFault(FaultRecord{Kind: "budget", Steps: 100001})
	mt.RecordFault(FaultRecord{Kind: "runtime", Steps: 12})

	// WHEN summarized
	summary := Summarize(mt)

	// THEN counts match
	if summary.BootAttempts != 2 {
		t.Errorf("expected 2 boot attempts, got %d", summary.BootAttempts)
	}
	if summary.BootFailures != 1 {
		t.Errorf("expected 1 boot failure, got %d", summary.BootFailures)
	}
	if summary.StateEntries["booting"] != 2 {
		t.Errorf("expected booting entered twice, got %d", summary.StateEntries["booting"])
	}
	if summary.FaultDistribution["budget"] != 1 || summary.FaultDistribution["runtime"] != 1 {
		t.Errorf("unexpected fault distribution %v", summary.FaultDistribution)
	}
	if summary.MaxFaultSteps != 100001 {
		t.Errorf("expected max fault steps 100001, got %d", summary.MaxFaultSteps)
	}
}
