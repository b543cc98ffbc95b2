package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevm/casevm/machine"
)

func TestRunComputer_SampleConfig(t *testing.T) {
	// GIVEN the sample computer with a scripted robot session
	cf, err := loadComputerFile("../configs/computer.yaml")
	require.NoError(t, err)

	// WHEN it runs past the last scripted event
	report, err := runComputer(cf, 20, "")
	require.NoError(t, err)

	// THEN the BIOS booted once and drew the session on the screen
	assert.Equal(t, machine.StateRunning, report.State)
	assert.NoError(t, report.LastError)
	assert.Equal(t, 1, report.Summary.BootAttempts)
	assert.Zero(t, report.Summary.BootFailures)

	screen := strings.Join(report.Screen, "\n")
	assert.Contains(t, screen, machine.OSVersion+" booted")
	assert.Contains(t, screen, "robot: Rover")
	assert.Contains(t, screen, "forward: true")
	assert.Contains(t, screen, "swing: true")
	assert.Contains(t, screen, "slot 1 holds 1")

	// AND the report prints every section
	var buf bytes.Buffer
	report.Print(&buf, true)
	for _, section := range []string{"=== Machine Summary ===", "=== Components ===", "=== Screen ==="} {
		if !strings.Contains(buf.String(), section) {
			t.Errorf("report is missing %q", section)
		}
	}
}

func TestRunComputer_StatePersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bios.toml", "code = '''\nwhile true do computer.pullSignal() end\n'''\n")
	path := writeFile(t, dir, "c.yaml", `
firmware: bios.toml
computer:
  energy_capacity: 1000
  machine:
    energy_per_tick: 10
`)
	state := filepath.Join(dir, "state.json")
	cf, err := loadComputerFile(path)
	require.NoError(t, err)

	// WHEN running twice against the same state file
	first, err := runComputer(cf, 10, state)
	require.NoError(t, err)
	second, err := runComputer(cf, 10, state)
	require.NoError(t, err)

	// THEN the second run continues from the saved energy instead of recharging;
	// the restored machine spends its first tick booting
	assert.Equal(t, 900, first.Energy)
	assert.Equal(t, 810, second.Energy)
	assert.Equal(t, machine.StateRunning, second.State)
}

func TestRunComputer_BrokenFirmware(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bios.toml", "code = 'this is not lua'\n")
	path := writeFile(t, dir, "c.yaml", "firmware: bios.toml\n")
	cf, err := loadComputerFile(path)
	require.NoError(t, err)

	report, err := runComputer(cf, 3, "")

	require.NoError(t, err, "boot failures are reported, not returned")
	assert.Equal(t, machine.StateStopped, report.State)
	assert.ErrorIs(t, report.LastError, machine.ErrBootExecutionFailed)
	assert.Equal(t, 1, report.Summary.BootFailures)
}
