package machine

import (
	"fmt"
	"math"
	"time"
)

// Beep limits.
const (
	MinBeepFrequency = 20.0
	MaxBeepFrequency = 20000.0
	MinBeepDuration  = 0.05
	MaxBeepDuration  = 5.0
)

// API is the host surface a guest runtime exposes to programs. It is only
// used from inside Program.Resume, while the machine holds its tick lock,
// and therefore never takes that lock itself.
type API struct {
	m *Machine
}

// OSVersion returns the version stamp published as _OSVERSION.
func (a *API) OSVersion() string { return OSVersion }

// Address returns the host identity.
func (a *API) Address() string { return a.m.host.Identity() }

// Energy returns the stored energy of the host.
func (a *API) Energy() float64 { return float64(a.m.host.EnergyStored()) }

// MaxEnergy returns the energy capacity of the host.
func (a *API) MaxEnergy() float64 { return float64(a.m.host.MaxEnergy()) }

// Uptime returns the seconds elapsed since the current boot.
func (a *API) Uptime() float64 {
	return a.m.now().Sub(a.m.bootedAt).Seconds()
}

// RealTime returns the wall-clock time in seconds since the Unix epoch.
func (a *API) RealTime() float64 {
	return float64(a.m.now().UnixNano()) / float64(time.Second)
}

// MaxStringLength is the longest string a guest may build in one call.
func (a *API) MaxStringLength() int { return a.m.cfg.MaxStringLength }

// Beep plays a tone. Out-of-range values are clamped.
func (a *API) Beep(frequency, duration float64) {
	frequency, duration = ClampBeep(frequency, duration)
	a.m.log.Infof("beep %.0f Hz for %.2fs", frequency, duration)
}

// ClampBeep bounds a tone to the audible range and a sensible duration.
func ClampBeep(frequency, duration float64) (float64, float64) {
	return math.Min(math.Max(frequency, MinBeepFrequency), MaxBeepFrequency),
		math.Min(math.Max(duration, MinBeepDuration), MaxBeepDuration)
}

// Print writes guest output to the machine log.
func (a *API) Print(msg string) {
	a.m.log.Info(msg)
}

// BootAddress returns the preferred boot device stored in the firmware.
func (a *API) BootAddress() (string, bool) { return a.m.boot.BootAddress() }

// SetBootAddress stores the preferred boot device in the firmware.
func (a *API) SetBootAddress(addr string) bool { return a.m.boot.SetBootAddress(addr) }

// Shutdown asks the host to stop, or to restart when reboot is set, as soon
// as the program yields.
func (a *API) Shutdown(reboot bool) {
	if reboot {
		a.m.request.Store(int32(requestReboot))
		return
	}
	a.m.request.Store(int32(requestStop))
}

// PushSignal queues a signal for the program itself.
func (a *API) PushSignal(name string, args ...any) bool {
	return a.m.signals.Push(name, args...)
}

// List returns address → type of the valid components, optionally filtered by type.
func (a *API) List(filter string) map[string]string {
	return a.m.registry.List(filter)
}

// Type returns the type of the component at address.
func (a *API) Type(address string) (string, error) {
	kind, ok := a.m.registry.TypeOf(address)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSuchComponent, address)
	}
	return kind, nil
}

// Methods returns the method names of the component at address.
func (a *API) Methods(address string) ([]string, error) {
	return a.m.registry.Methods(address)
}

// Doc returns the documentation of a component method.
func (a *API) Doc(address, method string) (string, error) {
	return a.m.registry.Doc(address, method)
}

// Invoke calls a component method.
func (a *API) Invoke(address, method string, args Args) ([]any, error) {
	return a.m.registry.Invoke(address, method, args)
}

// Primary returns the default component of a type.
func (a *API) Primary(kind string) (string, bool) {
	return a.m.registry.Primary(kind)
}
