package computer

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// TagStore is an in-memory key/value blob store. It can be written to and
// read from a JSON file so a computer survives process restarts.
type TagStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewTagStore creates an empty store.
func NewTagStore() *TagStore {
	return &TagStore{m: make(map[string][]byte)}
}

// Get returns a copy of the blob stored under key.
func (t *TagStore) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Put stores a copy of value under key.
func (t *TagStore) Put(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = append([]byte(nil), value...)
}

// Keys returns the stored keys, sorted.
func (t *TagStore) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the store as an object of base64 blobs.
func (t *TagStore) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(t.m)
}

// UnmarshalJSON replaces the store contents.
func (t *TagStore) UnmarshalJSON(data []byte) error {
	m := make(map[string][]byte)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = m
	return nil
}

// WriteFile saves the store to path.
func (t *TagStore) WriteFile(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing tags: %w", err)
	}
	return nil
}

// ReadTagFile loads a store saved by WriteFile. A missing file yields an
// empty store.
func ReadTagFile(path string) (*TagStore, error) {
	t := NewTagStore()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decoding tags %s: %w", path, err)
	}
	return t, nil
}
