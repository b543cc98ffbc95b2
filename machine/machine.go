package machine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casevm/casevm/machine/trace"
)

// State is the lifecycle state of a machine.
type State string

const (
	StateStopped State = "stopped"
	StateBooting State = "booting"
	StateRunning State = "running"
	StateFaulted State = "faulted"
)

type shutdownRequest int32

const (
	requestNone shutdownRequest = iota
	requestStop
	requestReboot
)

// execution is the live guest program of a running machine.
type execution struct {
	program  Program
	deadline time.Time // when a timed pull gives up
	forever  bool      // pull without timeout
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock used for uptime and pull timeouts.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine drives one guest program: it boots firmware, resumes the program
// once per tick within a budget, delivers signals and enforces energy use.
//
// Tick, Start, Stop and Restart are safe from any goroutine but must not be
// called from inside a component method invoked by the guest.
type Machine struct {
	cfg      Config
	host     Host
	registry *Registry
	signals  *SignalQueue
	boot     *BootSequencer
	api      *API
	trace    *trace.MachineTrace
	log      *logrus.Entry
	now      func() time.Time

	mu       sync.Mutex // serializes lifecycle changes and ticks
	exec     *execution
	lastErr  error
	ticks    int64
	bootedAt time.Time

	state   atomic.Value // State
	request atomic.Int32 // shutdownRequest raised by the guest
	active  atomic.Pointer[Budget]
}

// NewMachine creates a stopped machine housed by host. The runtime named in
// cfg must have been registered, typically by importing machine/luavm.
func NewMachine(cfg Config, host Host, opts ...Option) (*Machine, error) {
	if host == nil {
		return nil, errors.New("machine requires a host")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	runtime, err := NewRuntime(cfg.Runtime)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	m := &Machine{
		cfg:      cfg,
		host:     host,
		registry: registry,
		signals:  NewSignalQueue(cfg.SignalCapacity),
		boot:     NewBootSequencer(registry, runtime, cfg.FirmwareType),
		trace: trace.NewMachineTrace(trace.TraceConfig{
			Level:      trace.TraceLevel(cfg.Trace.Level),
			MaxRecords: cfg.Trace.MaxRecords,
		}),
		log: logrus.WithField("machine", host.Identity()),
		now: time.Now,
	}
	m.api = &API{m: m}
	m.state.Store(StateStopped)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Components returns the registry of components visible to the guest.
func (m *Machine) Components() *Registry { return m.registry }

// Signals returns the signal queue of the machine.
func (m *Machine) Signals() *SignalQueue { return m.signals }

// Boot returns the boot sequencer.
func (m *Machine) Boot() *BootSequencer { return m.boot }

// Trace returns the lifecycle trace. Read it only while no tick is running.
func (m *Machine) Trace() *trace.MachineTrace { return m.trace }

// Config returns the effective configuration.
func (m *Machine) Config() Config { return m.cfg }

// State returns the current lifecycle state without waiting for a running tick.
func (m *Machine) State() State { return m.state.Load().(State) }

// IsRunning reports whether the machine is Running.
func (m *Machine) IsRunning() bool { return m.State() == StateRunning }

// LastError returns the error that last stopped or restarted the guest.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Ticks returns the number of ticks processed.
func (m *Machine) Ticks() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// Start boots the machine. It is a no-op unless the machine is Stopped (or
// has a boot pending) and the host holds at least one tick worth of energy.
// Boot failures are returned and leave the machine Stopped.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.State() {
	case StateStopped, StateBooting:
	default:
		return nil
	}
	if err := m.bootLocked(); err != nil && !errors.Is(err, ErrInsufficientEnergy) {
		return err
	}
	return nil
}

// Stop halts the machine, interrupting a guest that is executing right now.
func (m *Machine) Stop() {
	if b := m.active.Load(); b != nil {
		b.Cancel(ErrStopped)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked("stop")
}

// Restart stops and boots the machine again.
func (m *Machine) Restart() error {
	m.Stop()
	return m.Start()
}

// PushSignal queues a signal from outside the guest. Signals are accepted
// only while the machine is Running.
func (m *Machine) PushSignal(name string, args ...any) bool {
	if !m.IsRunning() {
		return false
	}
	return m.signals.Push(name, args...)
}

// OnDeviceSetChanged tells a running guest that its components changed.
// Each diff entry becomes a component_added or component_removed signal,
// followed by one component_changed.
func (m *Machine) OnDeviceSetChanged(diffs ...Diff) {
	if !m.IsRunning() {
		return
	}
	for _, d := range diffs {
		for _, ref := range d.Removed {
			m.signals.Push(SignalComponentRemoved, ref.Address, ref.Type)
		}
		for _, ref := range d.Added {
			m.signals.Push(SignalComponentAdded, ref.Address, ref.Type)
		}
	}
	m.signals.Push(SignalComponentChanged)
}

// Tick advances the machine by one step. A pending boot runs first and
// consumes the tick; a running machine draws one energy quantum and resumes
// its program while signals are available.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++

	switch m.State() {
	case StateBooting:
		if err := m.bootLocked(); err != nil {
			m.log.Debugf("deferred boot did not complete: %v", err)
		}
	case StateRunning:
		m.runLocked()
	}
}

func (m *Machine) bootLocked() error {
	if m.host.EnergyStored() < m.cfg.EnergyPerTick {
		m.trace.RecordFault(trace.FaultRecord{Tick: m.ticks, Kind: "energy", Message: ErrInsufficientEnergy.Error()})
		m.stopLocked("insufficient energy")
		return ErrInsufficientEnergy
	}

	m.teardownLocked()
	m.setStateLocked(StateBooting, "boot")
	m.signals.Clear()
	m.bootedAt = m.now()

	budget := m.beginSlice()
	defer m.endSlice(budget)
	program, step, err := m.boot.Boot(budget, m.api)
	firmware, _ := m.boot.Firmware()
	record := trace.BootRecord{Tick: m.ticks, Firmware: firmware, OK: err == nil}
	if err != nil {
		record.Error = err.Error()
		m.trace.RecordBoot(record)
		if errors.Is(err, ErrStopped) {
			return err
		}
		m.lastErr = err
		m.log.Warnf("boot failed: %v", err)
		m.stopLocked("boot failed")
		return err
	}
	m.trace.RecordBoot(record)
	m.log.Infof("booted from %s %s", m.cfg.FirmwareType, firmware)

	m.exec = &execution{program: program}
	m.setStateLocked(StateRunning, "booted")
	m.settleLocked(step)
	return nil
}

func (m *Machine) runLocked() {
	if m.exec == nil {
		m.setStateLocked(StateBooting, "no program")
		return
	}
	quantum := m.cfg.EnergyPerTick
	if m.host.EnergyStored() < quantum || m.host.ExtractEnergy(quantum) < quantum {
		m.trace.RecordFault(trace.FaultRecord{Tick: m.ticks, Kind: "energy", Message: ErrInsufficientEnergy.Error()})
		m.log.Debugf("stopping: %v", ErrInsufficientEnergy)
		m.stopLocked("insufficient energy")
		return
	}

	budget := m.beginSlice()
	defer m.endSlice(budget)
	for resumes := 0; ; resumes++ {
		wake, ok := m.nextWakeLocked(resumes == 0)
		if !ok {
			return
		}
		step, err := m.exec.program.Resume(budget, wake)
		if cause := budget.Err(); cause != nil {
			m.interruptedLocked(cause, budget)
			return
		}
		if err != nil {
			m.crashLocked(err, budget)
			return
		}
		if !m.settleLocked(step) {
			return
		}
	}
}

// nextWakeLocked decides whether the waiting program can be resumed now.
// A queued signal always wakes it; an expired timeout only on the first
// resume of a tick.
func (m *Machine) nextWakeLocked(first bool) (Wake, bool) {
	if s, ok := m.signals.TryPull(); ok {
		return Wake{Signal: &s}, true
	}
	if first && !m.exec.forever && !m.now().Before(m.exec.deadline) {
		return Wake{}, true
	}
	return Wake{}, false
}

// settleLocked applies the outcome of a completed resume and reports
// whether the program is still waiting for signals.
func (m *Machine) settleLocked(step Step) bool {
	switch shutdownRequest(m.request.Swap(int32(requestNone))) {
	case requestStop:
		m.stopLocked("guest shutdown")
		return false
	case requestReboot:
		m.teardownLocked()
		m.signals.Clear()
		m.setStateLocked(StateBooting, "guest reboot")
		return false
	}
	if step.Finished {
		m.stopLocked("program finished")
		return false
	}
	m.exec.forever = step.Wait < 0
	m.exec.deadline = m.now().Add(max(step.Wait, 0))
	return true
}

func (m *Machine) interruptedLocked(cause error, budget *Budget) {
	if errors.Is(cause, ErrStopped) {
		// Stop is waiting for the lock and completes the teardown.
		return
	}
	m.lastErr = cause
	m.trace.RecordFault(trace.FaultRecord{Tick: m.ticks, Kind: "budget", Message: cause.Error(), Steps: budget.Steps()})
	m.log.Warnf("guest ran %d instructions without yielding, restarting: %v", budget.Steps(), cause)
	m.setStateLocked(StateFaulted, "budget exceeded")
	m.teardownLocked()
	m.signals.Clear()
	m.setStateLocked(StateBooting, "forced restart")
}

func (m *Machine) crashLocked(err error, budget *Budget) {
	m.lastErr = err
	m.trace.RecordFault(trace.FaultRecord{Tick: m.ticks, Kind: "runtime", Message: err.Error(), Steps: budget.Steps()})
	m.log.Warnf("guest crashed: %v", err)
	m.setStateLocked(StateFaulted, "guest error")
	m.stopLocked("guest error")
}

func (m *Machine) stopLocked(reason string) {
	m.teardownLocked()
	m.signals.Clear()
	m.setStateLocked(StateStopped, reason)
}

func (m *Machine) teardownLocked() {
	if m.exec != nil {
		m.exec.program.Close()
		m.exec = nil
	}
	m.request.Store(int32(requestNone))
}

func (m *Machine) setStateLocked(to State, reason string) {
	from := m.State()
	if from == to {
		return
	}
	m.state.Store(to)
	m.trace.RecordTransition(trace.TransitionRecord{Tick: m.ticks, From: string(from), To: string(to), Reason: reason})
	m.log.Debugf("%s -> %s (%s)", from, to, reason)
}

func (m *Machine) beginSlice() *Budget {
	b := NewBudget(m.cfg.MaxInstructions, m.cfg.TimeLimit)
	m.active.Store(b)
	return b
}

func (m *Machine) endSlice(b *Budget) {
	m.active.CompareAndSwap(b, nil)
	b.Release()
}
