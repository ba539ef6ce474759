package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/logging"
	"github.com/herculesaleixo/stackform/internal/remote"
	"github.com/herculesaleixo/stackform/internal/state"
)

// ApplyEvent reports the progress of a single action.
type ApplyEvent struct {
	Resource string
	Action   ir.ActionKind
	Status   string // "started", "succeeded", "failed", "aborted"
	Duration time.Duration
	Err      error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Report enumerates the outcome of every mutating action in a plan. A failed
// action is one whose remote operation failed; an aborted action never ran
// because a prerequisite failed.
type Report struct {
	Succeeded []string
	Failed    []string
	Aborted   []string
	Errors    map[string]error
}

// OK reports full success.
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && len(r.Aborted) == 0
}

// ApplyPlan executes a plan against the remote stores, persisting each
// resource's state as soon as its remote operation is confirmed.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, store *state.Manager) (*Report, error) {
	return e.ApplyPlanWithCallback(ctx, plan, store, nil)
}

// ApplyPlanWithCallback executes a plan with progress callbacks. Actions with
// no ordering edge between them run concurrently up to Parallelism; an edge
// forces the dependent to wait for the prerequisite's remote mutation and
// state write. On failure the dependent subtree is aborted while running
// independent actions finish. Nothing is rolled back: the report plus the
// partially updated state are the recovery path.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, store *state.Manager, callback ApplyCallback) (*Report, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	actions := plan.Changes()
	inPlan := make(map[string]*ir.Action, len(actions))
	for _, a := range actions {
		inPlan[a.ID] = a
	}

	var (
		mu        sync.Mutex
		cond      = sync.NewCond(&mu)
		succeeded = make(map[string]bool)
		failed    = make(map[string]bool)
		aborted   = make(map[string]bool)
		errs      = make(map[string]error)
	)

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	sem := make(chan struct{}, parallelism)

	// wake waiters when the whole apply is cancelled
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-watchDone:
		}
	}()

	var wg sync.WaitGroup
	for _, action := range actions {
		wg.Add(1)
		go func(a *ir.Action) {
			defer wg.Done()

			mu.Lock()
			for {
				ready, doomed := true, false
				for _, dep := range a.After {
					if _, known := inPlan[dep]; !known {
						continue
					}
					if failed[dep] || aborted[dep] {
						doomed = true
						break
					}
					if !succeeded[dep] {
						ready = false
					}
				}
				if doomed || ctx.Err() != nil {
					aborted[a.ID] = true
					mu.Unlock()
					cond.Broadcast()
					emit(ApplyEvent{Resource: a.Resource, Action: a.Kind, Status: "aborted"})
					return
				}
				if ready {
					break
				}
				cond.Wait()
			}
			mu.Unlock()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Resource: a.Resource, Action: a.Kind, Status: "started"})

			err := e.execute(ctx, a, store)

			mu.Lock()
			if err != nil {
				failed[a.ID] = true
				errs[a.ID] = err
			} else {
				succeeded[a.ID] = true
			}
			mu.Unlock()
			cond.Broadcast()

			if err != nil {
				emit(ApplyEvent{Resource: a.Resource, Action: a.Kind, Status: "failed", Duration: time.Since(start), Err: err})
			} else {
				emit(ApplyEvent{Resource: a.Resource, Action: a.Kind, Status: "succeeded", Duration: time.Since(start)})
			}
		}(action)
	}
	wg.Wait()

	report := &Report{Errors: errs}
	for id := range succeeded {
		report.Succeeded = append(report.Succeeded, id)
	}
	for id := range failed {
		report.Failed = append(report.Failed, id)
	}
	for id := range aborted {
		report.Aborted = append(report.Aborted, id)
	}
	sort.Strings(report.Succeeded)
	sort.Strings(report.Failed)
	sort.Strings(report.Aborted)

	if !report.OK() {
		return report, fmt.Errorf("apply incomplete: %d succeeded, %d failed, %d aborted",
			len(report.Succeeded), len(report.Failed), len(report.Aborted))
	}
	return report, nil
}

// execute runs one action to completion, including readiness polling and the
// durable state write. The state is only touched after the remote operation
// is confirmed.
func (e *Engine) execute(ctx context.Context, a *ir.Action, store *state.Manager) error {
	timeout := e.ActionTimeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.Debug("executing action", "action", a.ID, "type", a.Type)

	prov, err := e.registry.Get(a.Provider)
	if err != nil {
		return &ir.ActionFailedError{Resource: a.Resource, Action: a.Kind, Err: err}
	}

	fail := func(err error) error {
		return &ir.ActionFailedError{Resource: a.Resource, Action: a.Kind, Err: err}
	}

	switch a.Kind {
	case ir.ActionDelete:
		err := RetryWithBackoff(ctx, e.Retry, func() error {
			return prov.Delete(ctx, &remote.DeleteRequest{Type: a.Type, Name: a.Resource, ID: a.PriorID, Prior: a.Prior})
		})
		if err != nil {
			return fail(err)
		}
		if a.Superseded {
			// state already points at the successor instance
			return nil
		}
		if err := store.Delete(ctx, a.Resource); err != nil {
			return fail(err)
		}
		return nil

	case ir.ActionCreate, ir.ActionUpdate, ir.ActionReplace:
		props, err := e.resolveForApply(a, store)
		if err != nil {
			return fail(err)
		}

		if a.Kind == ir.ActionReplace && a.DeleteBeforeCreate {
			err := RetryWithBackoff(ctx, e.Retry, func() error {
				return prov.Delete(ctx, &remote.DeleteRequest{Type: a.Type, Name: a.Resource, ID: a.PriorID, Prior: a.Prior})
			})
			if err != nil {
				return fail(err)
			}
		}

		var result *remote.Result
		err = RetryWithBackoff(ctx, e.Retry, func() error {
			var opErr error
			if a.Kind == ir.ActionUpdate {
				result, opErr = prov.Update(ctx, &remote.UpdateRequest{
					Type: a.Type, Name: a.Resource, ID: a.PriorID,
					Properties: props, Prior: a.Prior,
				})
			} else {
				result, opErr = prov.Create(ctx, &remote.CreateRequest{
					Type: a.Type, Name: a.Resource, Properties: props,
				})
			}
			return opErr
		})
		if err != nil {
			return fail(err)
		}

		if err := e.awaitReady(ctx, prov, a.Type, result.ID); err != nil {
			return fail(err)
		}

		rs := &ir.ResourceState{
			Name:         a.Resource,
			Type:         a.Type,
			Provider:     a.Provider,
			RemoteID:     result.ID,
			Inputs:       props,
			Outputs:      result.Attributes,
			Dependencies: a.Dependencies,
		}
		if err := store.Put(ctx, rs); err != nil {
			return fail(err)
		}
		return nil

	default:
		return nil
	}
}

// resolveForApply evaluates the action's raw properties against live state.
// Prerequisite actions have completed by the time this runs, so every
// reference must resolve.
func (e *Engine) resolveForApply(a *ir.Action, store *state.Manager) (map[string]any, error) {
	props, unknown := ir.ResolveProperties(a.Desired, &applyResolver{store: store})
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unresolved properties at apply time: %v", unknown)
	}
	return normalize(props).(map[string]any), nil
}

type applyResolver struct {
	store *state.Manager
}

func (r *applyResolver) ResolveRef(target, attr string) (any, bool) {
	rs, ok := r.store.Get(target)
	if !ok {
		return nil, false
	}
	return rs.Attribute(attr)
}

func (r *applyResolver) ResolveImport(namespace, key string) (any, bool) {
	return r.store.Export(namespace, key)
}

// awaitReady polls the store's readiness condition with capped exponential
// backoff until it holds, the context expires, or the store reports a
// permanent error. Transient probe errors keep polling.
func (e *Engine) awaitReady(ctx context.Context, prov remote.RemoteStore, typeTag, id string) error {
	interval := e.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	const maxInterval = 30 * time.Second

	for {
		ready, err := prov.Ready(ctx, typeTag, id)
		if err != nil && !remote.IsTransient(err) {
			return fmt.Errorf("readiness check failed: %w", err)
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s %s to become ready: %w", typeTag, id, ctx.Err())
		case <-time.After(interval):
		}
		if interval < maxInterval {
			interval *= 2
			if interval > maxInterval {
				interval = maxInterval
			}
		}
	}
}
