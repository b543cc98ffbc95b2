package trace

// TraceSummary aggregates statistics from a MachineTrace.
type TraceSummary struct {
	Transitions       int
	BootAttempts      int
	BootFailures      int
	Faults            int
	FaultDistribution map[string]int // fault kind → count
	StateEntries      map[string]int // state → number of times entered
	MaxFaultSteps     int
}

// Summarize computes aggregate statistics from a MachineTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(mt *MachineTrace) *TraceSummary {
	summary := &TraceSummary{
		FaultDistribution: make(map[string]int),
		StateEntries:      make(map[string]int),
	}
	if mt == nil {
		return summary
	}

	summary.Transitions = len(mt.Transitions)
	for _, t := range mt.Transitions {
		summary.StateEntries[t.To]++
	}

	summary.BootAttempts = len(mt.Boots)
	for _, b := range mt.Boots {
		if !b.OK {
			summary.BootFailures++
		}
	}

	summary.Faults = len(mt.Faults)
	for _, f := range mt.Faults {
		summary.FaultDistribution[f.Kind]++
		if f.Steps > summary.MaxFaultSteps {
			summary.MaxFaultSteps = f.Steps
		}
	}

	return summary
}
