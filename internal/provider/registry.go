package provider

import (
	"fmt"
	"sync"

	"github.com/herculesaleixo/stackform/internal/remote"
	"github.com/herculesaleixo/stackform/providers/aws"
	"github.com/herculesaleixo/stackform/providers/docker"
	"github.com/herculesaleixo/stackform/providers/null"
)

// Registry manages the lifecycle of remote stores.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]remote.RemoteStore
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]remote.RemoteStore),
	}
}

// Load initializes and registers a built-in remote store.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[name]; exists {
		return nil
	}

	var s remote.RemoteStore
	switch name {
	case "null":
		s = null.New()
	case "aws":
		s = aws.New()
	case "docker":
		s = docker.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.stores[name] = s
	return nil
}

// Register installs a store under a name, replacing any existing one. Tests
// use this to inject scripted stores.
func (r *Registry) Register(name string, s remote.RemoteStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[name] = s
}

// Get returns a registered store.
func (r *Registry) Get(name string) (remote.RemoteStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return s, nil
}
