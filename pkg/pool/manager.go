package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Manager manages multiple named pools.
type Manager struct {
	mu     sync.RWMutex
	pools  map[string]*Pool
	closed atomic.Bool
}

// NewManager creates a new pool manager.
func NewManager() *Manager {
	return &Manager{
		pools: make(map[string]*Pool),
	}
}

// Register registers a new pool under the given type name.
func (m *Manager) Register(typ Type, config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrPoolClosed
	}

	name := string(typ)
	if _, exists := m.pools[name]; exists {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExists, name)
	}

	pool, err := NewPool(name, typ, config)
	if err != nil {
		return err
	}

	m.pools[name] = pool
	return nil
}

// Get returns the pool registered under the given type.
func (m *Manager) Get(typ Type) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return nil, ErrPoolClosed
	}

	pool, exists := m.pools[string(typ)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, typ)
	}

	return pool, nil
}

// Submit submits a task to the pool of the given type. When the pool is
// missing or saturated the task runs in a plain goroutine so background work
// is never silently dropped.
func (m *Manager) Submit(typ Type, task func()) {
	pool, err := m.Get(typ)
	if err == nil {
		if err = pool.Submit(task); err == nil {
			return
		}
	}
	go func() {
		defer func() {
			_ = recover()
		}()
		task()
	}()
}

// ReleaseAll releases every registered pool, waiting up to timeout each.
func (m *Manager) ReleaseAll(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return
	}
	m.closed.Store(true)

	for _, pool := range m.pools {
		_ = pool.ReleaseTimeout(timeout)
	}
}
