package machine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevm/casevm/machine"
	"github.com/casevm/casevm/machine/internal/testutil"
	"github.com/casevm/casevm/machine/trace"
)

// fakeClock is a manually advanced wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newMachine builds a machine on the scripted runtime. When steps are
// given, a firmware holding them is installed.
func newMachine(t *testing.T, cfg machine.Config, host *testutil.Host, steps []testutil.StepFunc, opts ...machine.Option) *machine.Machine {
	t.Helper()
	cfg.Runtime = testutil.ScriptRuntime
	if host == nil {
		host = testutil.NewHost(1000)
	}
	m, err := machine.NewMachine(cfg, host, opts...)
	require.NoError(t, err)
	if steps != nil {
		m.Components().Add(testutil.NewFirmware(testutil.Script(t.Name(), steps...)))
	}
	return m
}

func TestMachine_Start_NoFirmware(t *testing.T) {
	// GIVEN a machine without any firmware component
	m := newMachine(t, machine.Config{}, nil, nil)

	// WHEN started
	err := m.Start()

	// THEN boot fails and the machine stays stopped
	assert.ErrorIs(t, err, machine.ErrNoFirmware)
	assert.Equal(t, machine.StateStopped, m.State())
	assert.ErrorIs(t, m.LastError(), machine.ErrNoFirmware)
}

func TestMachine_Start_EmptyFirmware(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, nil)
	m.Components().Add(testutil.NewFirmware("   \n"))

	err := m.Start()

	assert.ErrorIs(t, err, machine.ErrEmptyFirmware)
	assert.Equal(t, machine.StateStopped, m.State())
}

func TestMachine_Start_CompileFailure(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, nil)
	m.Components().Add(testutil.NewFirmware("not a registered script"))

	err := m.Start()

	assert.ErrorIs(t, err, machine.ErrBootExecutionFailed)
	assert.Equal(t, machine.StateStopped, m.State())
}

func TestMachine_Start_BootsAndRunsFirstUnit(t *testing.T) {
	// GIVEN firmware that records its wakes
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(3, testutil.Record(&wakes, testutil.Forever())))

	// WHEN started
	require.NoError(t, m.Start())

	// THEN the first unit ran without a signal and the machine is running
	assert.Equal(t, machine.StateRunning, m.State())
	require.Len(t, wakes, 1)
	assert.Nil(t, wakes[0].Signal)
}

func TestMachine_Start_IsNoOpWhenRunning(t *testing.T) {
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(3, testutil.Record(&wakes, testutil.Forever())))
	require.NoError(t, m.Start())

	require.NoError(t, m.Start())

	assert.Len(t, wakes, 1, "second Start must not reboot")
}

func TestMachine_Tick_DeliversSignalsInOrderWithinOneTick(t *testing.T) {
	// GIVEN a running machine waiting for signals
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(10, testutil.Record(&wakes, testutil.Forever())))
	require.NoError(t, m.Start())

	// WHEN three signals are queued and one tick runs
	assert.True(t, m.PushSignal("key_down", "a", 30))
	assert.True(t, m.PushSignal("key_up", "a", 30))
	assert.True(t, m.PushSignal("touch", 1, 2))
	m.Tick()

	// THEN all three are delivered in FIFO order in the same tick
	require.Len(t, wakes, 4)
	assert.Equal(t, "key_down", wakes[1].Signal.Name())
	assert.Equal(t, []any{"a", int64(30)}, wakes[1].Signal.Args())
	assert.Equal(t, "key_up", wakes[2].Signal.Name())
	assert.Equal(t, "touch", wakes[3].Signal.Name())
	assert.Equal(t, 0, m.Signals().Pending())
}

func TestMachine_Tick_NoSignalNoResume(t *testing.T) {
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(3, testutil.Record(&wakes, testutil.Forever())))
	require.NoError(t, m.Start())

	for i := 0; i < 5; i++ {
		m.Tick()
	}

	assert.Len(t, wakes, 1)
	assert.Equal(t, machine.StateRunning, m.State())
	assert.Equal(t, int64(5), m.Ticks())
}

func TestMachine_Tick_TimeoutResumesWithoutSignal(t *testing.T) {
	// GIVEN a program waiting one second for a signal
	clock := newFakeClock()
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil,
		testutil.Repeat(3, testutil.Record(&wakes, testutil.Wait(time.Second))),
		machine.WithClock(clock.Now))
	require.NoError(t, m.Start())

	// WHEN a tick runs before the timeout
	m.Tick()
	// THEN the program is not resumed
	assert.Len(t, wakes, 1)

	// WHEN the timeout has elapsed
	clock.Advance(2 * time.Second)
	m.Tick()

	// THEN it is resumed once with no signal
	require.Len(t, wakes, 2)
	assert.Nil(t, wakes[1].Signal)
}

func TestMachine_Tick_AtMostOneTimeoutPerTick(t *testing.T) {
	// GIVEN a program that polls with a zero timeout
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(20, testutil.Record(&wakes, testutil.Wait(0))))
	require.NoError(t, m.Start())

	// WHEN three ticks run
	m.Tick()
	m.Tick()
	m.Tick()

	// THEN each tick resumed it exactly once
	assert.Len(t, wakes, 4)
}

func TestMachine_Tick_BudgetExceeded_ForcesRestart(t *testing.T) {
	// GIVEN a program that spins after its first signal
	m := newMachine(t, machine.Config{MaxInstructions: 1000}, nil,
		[]testutil.StepFunc{testutil.Forever(), testutil.Spin()})
	require.NoError(t, m.Start())

	// WHEN the signal arrives and the program never yields
	m.PushSignal("go")
	m.Tick()

	// THEN the machine is restarting with the budget error recorded
	assert.Equal(t, machine.StateBooting, m.State())
	assert.ErrorIs(t, m.LastError(), machine.ErrBudgetExceeded)

	// AND the next tick boots a fresh program
	m.Tick()
	assert.Equal(t, machine.StateRunning, m.State())
}

func TestMachine_Start_BootBudgetExceeded_IsBootFailure(t *testing.T) {
	m := newMachine(t, machine.Config{MaxInstructions: 1000}, nil, []testutil.StepFunc{testutil.Spin()})

	err := m.Start()

	assert.ErrorIs(t, err, machine.ErrBootExecutionFailed)
	assert.ErrorIs(t, err, machine.ErrBudgetExceeded)
	assert.Equal(t, machine.StateStopped, m.State())
}

func TestMachine_Tick_GuestError_StopsWithLastError(t *testing.T) {
	oops := errors.New("oops")
	m := newMachine(t, machine.Config{}, nil, []testutil.StepFunc{testutil.Forever(), testutil.Fail(oops)})
	require.NoError(t, m.Start())

	m.PushSignal("go")
	m.Tick()

	assert.Equal(t, machine.StateStopped, m.State())
	assert.ErrorIs(t, m.LastError(), oops)
}

func TestMachine_Tick_ProgramFinished_Halts(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, []testutil.StepFunc{testutil.Forever()})
	require.NoError(t, m.Start())

	m.PushSignal("go")
	m.Tick()

	assert.Equal(t, machine.StateStopped, m.State())
	assert.NoError(t, m.LastError())
}

func shutdownStep(reboot bool) testutil.StepFunc {
	return func(_ context.Context, api *machine.API, _ machine.Wake) (machine.Step, error) {
		api.Shutdown(reboot)
		return machine.Step{Wait: -1}, nil
	}
}

func TestMachine_GuestShutdown_Stops(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, []testutil.StepFunc{testutil.Forever(), shutdownStep(false)})
	require.NoError(t, m.Start())

	m.PushSignal("go")
	m.Tick()

	assert.Equal(t, machine.StateStopped, m.State())
}

func TestMachine_GuestReboot_BootsOnNextTick(t *testing.T) {
	// GIVEN a program that asks for a reboot on its first signal
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, []testutil.StepFunc{
		testutil.Record(&wakes, testutil.Forever()),
		shutdownStep(true),
	})
	require.NoError(t, m.Start())

	// WHEN the signal is processed
	m.PushSignal("go")
	m.Tick()

	// THEN the reboot is deferred to the next tick
	assert.Equal(t, machine.StateBooting, m.State())
	m.Tick()
	assert.Equal(t, machine.StateRunning, m.State())
	assert.Len(t, wakes, 2, "the new program ran its first unit")
}

func TestMachine_Energy_StopsSilentlyWhenDrained(t *testing.T) {
	// GIVEN a host with one and a half ticks of energy
	host := testutil.NewHost(15)
	m := newMachine(t, machine.Config{}, host, testutil.Repeat(3, testutil.Forever()))
	require.NoError(t, m.Start())

	// WHEN two ticks run
	m.Tick()
	assert.Equal(t, 5, host.EnergyStored())
	m.Tick()

	// THEN the machine stopped without recording an error
	assert.Equal(t, machine.StateStopped, m.State())
	assert.NoError(t, m.LastError())
}

func TestMachine_Energy_StopsWhenExtractionFallsShort(t *testing.T) {
	// GIVEN a host that reports plenty of energy but hands out less than a quantum
	host := testutil.NewHost(1000)
	m := newMachine(t, machine.Config{}, host, testutil.Repeat(3, testutil.Forever()))
	require.NoError(t, m.Start())
	host.LimitExtraction(machine.DefaultEnergyPerTick - 1)

	// WHEN the machine ticks
	m.Tick()

	// THEN it stops instead of running in debt
	assert.Equal(t, machine.StateStopped, m.State())
	assert.NoError(t, m.LastError())
}

func TestMachine_Start_InsufficientEnergy_IsNoOp(t *testing.T) {
	host := testutil.NewHost(5)
	m := newMachine(t, machine.Config{}, host, testutil.Repeat(3, testutil.Forever()))

	err := m.Start()

	assert.NoError(t, err)
	assert.Equal(t, machine.StateStopped, m.State())
}

func TestMachine_PushSignal_RejectedWhenStopped(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, nil)

	assert.False(t, m.PushSignal("key_down"))
	assert.Equal(t, 0, m.Signals().Pending())
}

func TestMachine_OnDeviceSetChanged_EmitsSignals(t *testing.T) {
	// GIVEN a running machine
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(10, testutil.Record(&wakes, testutil.Forever())))
	require.NoError(t, m.Start())

	// WHEN the device set changes
	m.OnDeviceSetChanged(machine.Diff{
		Added:   []machine.ComponentRef{{Address: "a", Type: "gpu"}},
		Removed: []machine.ComponentRef{{Address: "b", Type: "screen"}},
	})
	m.Tick()

	// THEN removals, additions and a change notice are delivered
	require.Len(t, wakes, 4)
	assert.Equal(t, machine.SignalComponentRemoved, wakes[1].Signal.Name())
	assert.Equal(t, []any{"b", "screen"}, wakes[1].Signal.Args())
	assert.Equal(t, machine.SignalComponentAdded, wakes[2].Signal.Name())
	assert.Equal(t, machine.SignalComponentChanged, wakes[3].Signal.Name())
}

func TestMachine_OnDeviceSetChanged_IgnoredWhenStopped(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, nil)

	m.OnDeviceSetChanged()

	assert.Equal(t, 0, m.Signals().Pending())
}

func TestMachine_Stop_InterruptsRunningGuest(t *testing.T) {
	// GIVEN a program spinning with an effectively unlimited budget
	m := newMachine(t, machine.Config{MaxInstructions: 1 << 50, TimeLimit: time.Minute}, nil,
		[]testutil.StepFunc{testutil.Forever(), testutil.Spin()})
	require.NoError(t, m.Start())
	m.PushSignal("go")

	ticked := make(chan struct{})
	go func() {
		m.Tick()
		close(ticked)
	}()

	// WHEN Stop is called from another goroutine
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	// THEN the tick returns promptly and the machine is stopped without a fault
	select {
	case <-ticked:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the guest")
	}
	assert.Equal(t, machine.StateStopped, m.State())
	assert.NoError(t, m.LastError())
}

func TestMachine_Restart(t *testing.T) {
	var wakes []machine.Wake
	m := newMachine(t, machine.Config{}, nil, testutil.Repeat(5, testutil.Record(&wakes, testutil.Forever())))
	require.NoError(t, m.Start())

	require.NoError(t, m.Restart())

	assert.Equal(t, machine.StateRunning, m.State())
	assert.Len(t, wakes, 2)
}

func TestMachine_Trace_RecordsLifecycle(t *testing.T) {
	// GIVEN lifecycle tracing
	cfg := machine.Config{Trace: machine.TraceSettings{Level: "lifecycle"}}
	m := newMachine(t, cfg, nil, []testutil.StepFunc{testutil.Forever()})

	// WHEN the machine boots, finishes and is summarized
	require.NoError(t, m.Start())
	m.PushSignal("go")
	m.Tick()
	summary := trace.Summarize(m.Trace())

	// THEN the boot and every state entry are recorded
	assert.Equal(t, 1, summary.BootAttempts)
	assert.Equal(t, 0, summary.BootFailures)
	assert.Equal(t, 1, summary.StateEntries["booting"])
	assert.Equal(t, 1, summary.StateEntries["running"])
	assert.Equal(t, 1, summary.StateEntries["stopped"])
}

func TestMachine_BootAddress_RoundTrip(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, nil)
	fw := testutil.NewFirmware("code")
	m.Components().Add(fw)

	require.True(t, m.Boot().SetBootAddress("disk-1"))
	addr, ok := m.Boot().BootAddress()

	assert.True(t, ok)
	assert.Equal(t, "disk-1", addr)
	assert.Equal(t, "disk-1", fw.Data())

	// AND a read-only firmware refuses updates
	fw.SetReadOnly(true)
	assert.False(t, m.Boot().SetBootAddress("disk-2"))
	assert.Equal(t, "disk-1", fw.Data())
}

func TestMachine_BootAddress_NoFirmware(t *testing.T) {
	m := newMachine(t, machine.Config{}, nil, nil)

	_, ok := m.Boot().BootAddress()

	assert.False(t, ok)
	assert.False(t, m.Boot().SetBootAddress("x"))
}

func TestNewMachine_RejectsInvalidConfig(t *testing.T) {
	_, err := machine.NewMachine(machine.Config{MaxInstructions: -1}, testutil.NewHost(10))
	assert.Error(t, err)

	_, err = machine.NewMachine(machine.Config{}, nil)
	assert.Error(t, err)
}
