package settings

import (
	"sync"

	"github.com/sweeney/ferment-controller/internal/control"
)

// MemoryStore is an in-memory Store for tests and the simulator.
type MemoryStore struct {
	mu        sync.Mutex
	settings  control.Settings
	constants control.Constants
	stored    bool
	writes    int
	failWith  error
}

// NewMemoryStore returns an empty store. Load yields defaults until the
// first successful Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes every following Store return err. A nil err clears it.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Load returns the last stored values, or the defaults.
func (m *MemoryStore) Load() (control.Settings, control.Constants, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stored {
		return control.DefaultSettings(), control.DefaultConstants(), nil
	}
	return m.settings, m.constants, nil
}

// Store records s and k unless a failure has been injected.
func (m *MemoryStore) Store(s control.Settings, k control.Constants) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failWith != nil {
		return m.failWith
	}
	m.settings, m.constants, m.stored = s, k, true
	return nil
}

// Writes returns the number of Store calls, failed ones included.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
