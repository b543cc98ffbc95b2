package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/casevm/casevm/machine"
	"github.com/casevm/casevm/machine/computer"
	"github.com/casevm/casevm/machine/trace"
)

// Report is the outcome of a CLI run.
type Report struct {
	Ticks      int64
	State      machine.State
	LastError  error
	Energy     int
	MaxEnergy  int
	Dropped    int64
	Summary    *trace.TraceSummary
	Screen     []string
	Components map[string]string
}

// runComputer builds the computer described by cf, restores it from
// statePath when given, and runs it for n ticks.
func runComputer(cf *ComputerFile, n int64, statePath string) (*Report, error) {
	tags := computer.NewTagStore()
	if statePath != "" {
		var err error
		if tags, err = computer.ReadTagFile(statePath); err != nil {
			return nil, err
		}
	}
	if cf.Computer.Machine.Trace.Level == "" {
		cf.Computer.Machine.Trace.Level = string(trace.TraceLevelLifecycle)
	}
	a, err := cf.build(tags)
	if err != nil {
		return nil, err
	}
	c := a.computer
	m := c.Machine()
	if err := c.Load(); err != nil {
		return nil, err
	}
	if len(tags.Keys()) == 0 {
		c.Energy().Receive(c.MaxEnergy())
	}

	events := append([]EventSpec(nil), cf.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })

	if m.State() == machine.StateStopped {
		if err := c.Start(); err != nil {
			logrus.Warnf("boot failed: %v", err)
		}
	}
	for tick := int64(0); tick < n; tick++ {
		for len(events) > 0 && events[0].Tick <= tick {
			e := events[0]
			events = events[1:]
			if !m.PushSignal(e.Name, e.Args...) {
				logrus.Debugf("tick %d: signal %s dropped, machine is %s", tick, e.Name, m.State())
			}
		}
		c.Energy().Receive(cf.ChargePerTick)
		c.Tick()
	}

	if statePath != "" {
		if err := c.Save(); err != nil {
			return nil, err
		}
		if err := tags.WriteFile(statePath); err != nil {
			return nil, err
		}
	}

	report := &Report{
		Ticks:      n,
		State:      m.State(),
		LastError:  m.LastError(),
		Energy:     c.EnergyStored(),
		MaxEnergy:  c.MaxEnergy(),
		Dropped:    m.Signals().Dropped(),
		Summary:    trace.Summarize(m.Trace()),
		Components: m.Components().List(""),
	}
	if len(a.screens) > 0 {
		report.Screen = a.screens[0].Lines()
	}
	return report, nil
}

// Print writes the report in a human-readable form.
func (r *Report) Print(w io.Writer, screen bool) {
	fmt.Fprintln(w, "=== Machine Summary ===")
	fmt.Fprintf(w, "Ticks          : %d\n", r.Ticks)
	fmt.Fprintf(w, "State          : %s\n", r.State)
	if r.LastError != nil {
		fmt.Fprintf(w, "Last error     : %v\n", r.LastError)
	}
	fmt.Fprintf(w, "Energy         : %d / %d\n", r.Energy, r.MaxEnergy)
	fmt.Fprintf(w, "Boots          : %d (%d failed)\n", r.Summary.BootAttempts, r.Summary.BootFailures)
	fmt.Fprintf(w, "Faults         : %d\n", r.Summary.Faults)
	for _, kind := range sortedKeys(r.Summary.FaultDistribution) {
		fmt.Fprintf(w, "  %-13s: %d\n", kind, r.Summary.FaultDistribution[kind])
	}
	fmt.Fprintf(w, "Dropped signals: %d\n", r.Dropped)

	fmt.Fprintln(w, "=== Components ===")
	for _, address := range sortedKeys(r.Components) {
		fmt.Fprintf(w, "%-36s %s\n", address, r.Components[address])
	}

	if screen && r.Screen != nil {
		width := 0
		for _, line := range r.Screen {
			width = max(width, len([]rune(line)))
		}
		fmt.Fprintln(w, "=== Screen ===")
		border := "+" + strings.Repeat("-", width) + "+"
		fmt.Fprintln(w, border)
		for _, line := range r.Screen {
			fmt.Fprintf(w, "|%s%s|\n", line, strings.Repeat(" ", width-len([]rune(line))))
		}
		fmt.Fprintln(w, border)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
