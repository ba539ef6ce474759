// Package state persists the last-applied record of every resource. A
// successful Put is durable before it returns, so a dependent action's next
// read observes it.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/herculesaleixo/stackform/internal/ir"
)

// Backend reads and writes a whole state document.
type Backend interface {
	Read(ctx context.Context) (*ir.State, error)
	Write(ctx context.Context, st *ir.State) error

	// Lock acquires an exclusive lock on the state document.
	Lock() error
	Unlock() error
}

// Manager owns the in-memory state and pushes every mutation through the
// backend before acknowledging it. All mutations are serialized; the plan
// guarantees two actions never target the same logical resource anyway.
type Manager struct {
	mu      sync.Mutex
	state   *ir.State
	backend Backend
}

// Open reads the current state from the backend.
func Open(ctx context.Context, backend Backend) (*Manager, error) {
	st, err := backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if st.Resources == nil {
		st.Resources = make(map[string]*ir.ResourceState)
	}
	return &Manager{state: st, backend: backend}, nil
}

// Get returns the applied state of a logical resource.
func (m *Manager) Get(name string) (*ir.ResourceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.state.Resources[name]
	return rs, ok
}

// Put overwrites the applied state of a logical resource and persists before
// returning.
func (m *Manager) Put(ctx context.Context, rs *ir.ResourceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Resources[rs.Name] = rs
	return m.persistLocked(ctx)
}

// Delete removes the applied state of a logical resource and persists before
// returning.
func (m *Manager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.Resources, name)
	return m.persistLocked(ctx)
}

// List returns all applied resource states, sorted by logical name.
func (m *Manager) List() []*ir.ResourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ir.ResourceState, 0, len(m.state.Resources))
	for _, rs := range m.state.Resources {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Export returns a value published by another template.
func (m *Manager) Export(namespace, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.state.Exports[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

// PublishOutputs records a template's resolved outputs, exporting the named
// subset for cross-template imports.
func (m *Manager) PublishOutputs(ctx context.Context, namespace string, outputs map[string]any, exports map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Outputs = outputs
	if len(exports) > 0 {
		if m.state.Exports == nil {
			m.state.Exports = make(map[string]map[string]any)
		}
		m.state.Exports[namespace] = exports
	}
	return m.persistLocked(ctx)
}

// Snapshot returns a copy of the current state safe to hand to the planner.
func (m *Manager) Snapshot() *ir.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.state
	cp.Resources = make(map[string]*ir.ResourceState, len(m.state.Resources))
	for name, rs := range m.state.Resources {
		c := *rs
		cp.Resources[name] = &c
	}
	return &cp
}

// Lock locks the underlying backend.
func (m *Manager) Lock() error { return m.backend.Lock() }

// Unlock unlocks the underlying backend.
func (m *Manager) Unlock() error { return m.backend.Unlock() }

func (m *Manager) persistLocked(ctx context.Context) error {
	m.state.Serial++
	if err := m.backend.Write(ctx, m.state); err != nil {
		m.state.Serial--
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
