package computer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevm/casevm/machine"
	"github.com/casevm/casevm/machine/device"
	"github.com/casevm/casevm/machine/internal/testutil"
)

// signalNames lists the names of the signals among wakes.
func signalNames(wakes []machine.Wake) []string {
	var out []string
	for _, w := range wakes {
		if w.Signal != nil {
			out = append(out, w.Signal.Name())
		}
	}
	return out
}

// newComputer builds a charged computer running a scripted program from slot 0.
func newComputer(t *testing.T, cfg Config, wakes *[]machine.Wake) *Computer {
	t.Helper()
	cfg.Machine.Runtime = testutil.ScriptRuntime
	c, err := New(cfg, nil)
	require.NoError(t, err)
	c.Energy().Receive(c.MaxEnergy())
	firmware := testutil.NewFirmware(testutil.Script(t.Name(), testutil.Repeat(20, testutil.Record(wakes, testutil.Forever()))...))
	require.NoError(t, c.Slots().Insert(0, firmware))
	return c
}

func TestEnergyBuffer(t *testing.T) {
	b := NewEnergyBuffer(100)

	assert.Equal(t, 100, b.Receive(150), "receive is capped by capacity")
	assert.Equal(t, 0, b.Receive(1))
	assert.Equal(t, 30, b.Extract(30))
	assert.Equal(t, 70, b.Extract(500), "extract is capped by the stored amount")
	assert.Equal(t, 0, b.Stored())
	assert.Equal(t, 0, b.Extract(-5))
}

func TestTagStore_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.json")
	tags := NewTagStore()
	tags.Put("machine", []byte(`{"version":1}`))
	tags.Put("energy", []byte("42"))

	require.NoError(t, tags.WriteFile(path))
	restored, err := ReadTagFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"energy", "machine"}, restored.Keys())
	got, ok := restored.Get("machine")
	assert.True(t, ok)
	assert.Equal(t, `{"version":1}`, string(got))
}

func TestReadTagFile_Missing(t *testing.T) {
	tags, err := ReadTagFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, tags.Keys())
}

func TestSlots(t *testing.T) {
	s := NewSlots(2)
	probe := testutil.NewProbe("probe")

	assert.Error(t, s.Insert(2, probe))
	assert.Error(t, s.Insert(0, nil))
	require.NoError(t, s.Insert(1, probe))
	v := s.Version()

	assert.Equal(t, []machine.Component{probe}, s.Scan())
	probe.SetValid(false)
	assert.Empty(t, s.Scan(), "invalid devices are not reported")
	assert.Equal(t, v, s.Version(), "validity changes do not bump the version")

	got, ok := s.Remove(1)
	assert.True(t, ok)
	assert.Equal(t, probe, got)
	_, ok = s.Remove(1)
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"negative slots", Config{Slots: -1}, false},
		{"negative capacity", Config{EnergyCapacity: -1}, false},
		{"negative scan interval", Config{ScanInterval: -1}, false},
		{"bad machine runtime", Config{Machine: machine.Config{Runtime: "cobol"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestComputer_Start_NeedsEnergy(t *testing.T) {
	var wakes []machine.Wake
	c := newComputer(t, Config{}, &wakes)
	c.Energy().Extract(c.MaxEnergy())

	require.NoError(t, c.Start())

	assert.Equal(t, machine.StateStopped, c.Machine().State())
	assert.Equal(t, 1, c.Machine().Components().Len(), "slots are scanned even without power")
}

func TestComputer_Tick_SignalsInsertedDevice(t *testing.T) {
	// GIVEN a running computer
	var wakes []machine.Wake
	c := newComputer(t, Config{}, &wakes)
	require.NoError(t, c.Start())
	require.Equal(t, machine.StateRunning, c.Machine().State())

	// WHEN a device is inserted and the case ticks
	probe := testutil.NewProbe("probe")
	require.NoError(t, c.Slots().Insert(3, probe))
	c.Tick()

	// THEN the device is registered and the guest is told in the same tick
	assert.True(t, c.Machine().Components().Exists(probe.Address()))
	assert.Equal(t, []string{machine.SignalComponentAdded, machine.SignalComponentChanged}, signalNames(wakes))
	assert.Equal(t, []any{probe.Address(), "probe"}, wakes[1].Signal.Args())
	assert.Equal(t, int32(1), probe.Connects.Load())
}

func TestComputer_Tick_PeriodicRescanFindsInvalidDevice(t *testing.T) {
	var wakes []machine.Wake
	c := newComputer(t, Config{ScanInterval: 3}, &wakes)
	probe := testutil.NewProbe("probe")
	require.NoError(t, c.Slots().Insert(1, probe))
	require.NoError(t, c.Start())

	// WHEN the device silently goes away
	probe.SetValid(false)
	c.Tick()
	c.Tick()

	// THEN nothing is noticed before the scan interval
	assert.Empty(t, signalNames(wakes))

	c.Tick()

	// THEN the periodic rescan reports the removal
	assert.Equal(t, []string{machine.SignalComponentRemoved, machine.SignalComponentChanged}, signalNames(wakes))
	assert.False(t, c.Machine().Components().Exists(probe.Address()))
}

func TestComputer_Tick_UnchangedRescanIsSilent(t *testing.T) {
	var wakes []machine.Wake
	c := newComputer(t, Config{ScanInterval: 1}, &wakes)
	require.NoError(t, c.Start())

	for i := 0; i < 5; i++ {
		c.Tick()
	}

	assert.Empty(t, signalNames(wakes))
	assert.Equal(t, machine.StateRunning, c.Machine().State())
}

func TestComputer_Rescan_AttachesSignalSources(t *testing.T) {
	var wakes []machine.Wake
	c := newComputer(t, Config{}, &wakes)
	screen := device.NewScreen("", 1)
	require.NoError(t, c.Slots().Insert(1, screen))
	require.NoError(t, c.Start())

	// WHEN the screen is touched
	require.True(t, screen.Touch(2, 3, "player"))
	c.Tick()

	// THEN the guest receives the touch
	assert.Equal(t, []string{machine.SignalTouch}, signalNames(wakes))
}

func TestComputer_SaveLoad(t *testing.T) {
	// GIVEN a running computer that spent some energy
	var wakes []machine.Wake
	c := newComputer(t, Config{Address: "case-1"}, &wakes)
	require.NoError(t, c.Start())
	c.Tick()
	stored := c.EnergyStored()
	require.NoError(t, c.Save())

	// WHEN a new computer is built on the same tags
	restored, err := New(Config{Address: "case-1", Machine: machine.Config{Runtime: testutil.ScriptRuntime}}, c.Tags())
	require.NoError(t, err)
	require.NoError(t, restored.Load())

	// THEN the energy is back and the machine boots on its next tick
	assert.Equal(t, stored, restored.EnergyStored())
	assert.Equal(t, machine.StateBooting, restored.Machine().State())
}
