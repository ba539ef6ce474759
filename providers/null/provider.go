// Package null implements an in-memory remote store. It backs the
// null:Resource type and serves as the scriptable collaborator for engine
// tests: failures and readiness delays can be queued per logical name.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/herculesaleixo/stackform/internal/remote"
)

// Call records one remote operation for test assertions.
type Call struct {
	Op   string // "create", "update", "delete", "ready"
	Type string
	Name string
	ID   string
}

type Provider struct {
	mu      sync.Mutex
	seq     int
	objects map[string]map[string]any

	// Fail queues are consumed one error per call; an empty queue means
	// success. Keyed by logical name (delete: by remote ID).
	FailCreate map[string][]error
	FailUpdate map[string][]error
	FailDelete map[string][]error

	// ReadyAfter delays readiness by N polls per remote ID.
	ReadyAfter map[string]int

	calls []Call
}

func New() *Provider {
	return &Provider{
		objects:    make(map[string]map[string]any),
		FailCreate: make(map[string][]error),
		FailUpdate: make(map[string][]error),
		FailDelete: make(map[string][]error),
		ReadyAfter: make(map[string]int),
	}
}

func (p *Provider) Create(ctx context.Context, req *remote.CreateRequest) (*remote.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("create", req.Type, req.Name, "")

	if err := pop(p.FailCreate, req.Name); err != nil {
		return nil, err
	}

	p.seq++
	id := fmt.Sprintf("null-%s-%d", req.Name, p.seq)
	attrs := make(map[string]any, len(req.Properties)+1)
	for k, v := range req.Properties {
		attrs[k] = v
	}
	attrs["id"] = id
	p.objects[id] = attrs

	return &remote.Result{ID: id, Attributes: attrs}, nil
}

func (p *Provider) Update(ctx context.Context, req *remote.UpdateRequest) (*remote.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("update", req.Type, req.Name, req.ID)

	if err := pop(p.FailUpdate, req.Name); err != nil {
		return nil, err
	}

	if _, ok := p.objects[req.ID]; !ok {
		return nil, remote.Permanent(fmt.Errorf("no such object: %s", req.ID))
	}
	attrs := make(map[string]any, len(req.Properties)+1)
	for k, v := range req.Properties {
		attrs[k] = v
	}
	attrs["id"] = req.ID
	p.objects[req.ID] = attrs

	return &remote.Result{ID: req.ID, Attributes: attrs}, nil
}

func (p *Provider) Delete(ctx context.Context, req *remote.DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("delete", req.Type, req.Name, req.ID)

	if err := pop(p.FailDelete, req.ID); err != nil {
		return err
	}

	delete(p.objects, req.ID)
	return nil
}

func (p *Provider) Ready(ctx context.Context, typeTag, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("ready", typeTag, "", id)

	if n := p.ReadyAfter[id]; n > 0 {
		p.ReadyAfter[id] = n - 1
		return false, nil
	}
	return true, nil
}

// Object returns the live attributes of a remote object.
func (p *Provider) Object(id string) (map[string]any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	attrs, ok := p.objects[id]
	return attrs, ok
}

// Objects returns the number of live remote objects.
func (p *Provider) Objects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

// Calls returns the recorded operations in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Provider) record(op, typeTag, name, id string) {
	p.calls = append(p.calls, Call{Op: op, Type: typeTag, Name: name, ID: id})
}

func pop(queue map[string][]error, key string) error {
	q := queue[key]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	queue[key] = q[1:]
	return err
}
