package machine

// Host is the narrow view a machine has of the block or entity housing it.
type Host interface {
	// EnergyStored returns the currently stored energy.
	EnergyStored() int
	// MaxEnergy returns the storage capacity.
	MaxEnergy() int
	// ExtractEnergy removes up to amount and returns what was actually removed.
	ExtractEnergy(amount int) int
	// Identity returns an opaque position/identity string used in logs and
	// exposed to guests as computer.address().
	Identity() string
	// Tag returns the persisted key/value storage of the host.
	Tag() TagStore
}

// TagStore is the persisted blob storage of a host.
type TagStore interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
}

// DeviceDirectory enumerates the capability-bearing objects currently
// installed in a host, in slot order.
type DeviceDirectory interface {
	Scan() []Component
}
