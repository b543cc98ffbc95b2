package machine

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// TagKey is the host tag under which Save stores the machine state.
const TagKey = "machine"

const snapshotVersion = 1

// snapshot is the persisted form of a machine. Guest memory is not part of
// it: a machine that was running reboots when restored.
type snapshot struct {
	Version   int    `json:"version"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Serialize encodes whether the machine is running and its last error.
func (m *Machine) Serialize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{Version: snapshotVersion}
	switch m.State() {
	case StateRunning, StateBooting:
		s.Running = true
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return json.Marshal(s)
}

// Deserialize restores a serialized machine. Any live program is discarded;
// a machine saved while running is left Booting and boots on the next Tick
// or Start.
func (m *Machine) Deserialize(blob []byte) error {
	var s snapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("decoding machine state: %w", err)
	}
	if s.Version > snapshotVersion {
		return fmt.Errorf("unsupported machine state version %d", s.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.signals.Clear()
	m.lastErr = nil
	if s.LastError != "" {
		m.lastErr = errors.New(s.LastError)
	}
	if s.Running {
		m.setStateLocked(StateBooting, "restored")
	} else {
		m.setStateLocked(StateStopped, "restored")
	}
	return nil
}

// Save stores the serialized machine in the host tag store.
func (m *Machine) Save() error {
	tag := m.host.Tag()
	if tag == nil {
		return errors.New("host has no tag store")
	}
	blob, err := m.Serialize()
	if err != nil {
		return fmt.Errorf("encoding machine state: %w", err)
	}
	tag.Put(TagKey, blob)
	return nil
}

// Load restores the machine from the host tag store. A missing entry leaves
// the machine untouched.
func (m *Machine) Load() error {
	tag := m.host.Tag()
	if tag == nil {
		return nil
	}
	blob, ok := tag.Get(TagKey)
	if !ok {
		return nil
	}
	return m.Deserialize(blob)
}
