package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/logging"
	"github.com/herculesaleixo/stackform/internal/provider"
	"github.com/herculesaleixo/stackform/internal/schema"
)

const defaultParallelism = 10

// Engine computes and applies reconciliation plans.
type Engine struct {
	registry *provider.Registry
	schemas  *schema.Registry

	// Parallelism bounds the number of concurrently executing actions.
	Parallelism int

	// ActionTimeout bounds each action including readiness polling.
	ActionTimeout time.Duration

	// PollInterval is the base delay between readiness probes.
	PollInterval time.Duration

	Retry *RetryPolicy
}

func New(registry *provider.Registry, schemas *schema.Registry) *Engine {
	return &Engine{
		registry:      registry,
		schemas:       schemas,
		Parallelism:   defaultParallelism,
		ActionTimeout: DefaultActionTimeout,
		PollInterval:  2 * time.Second,
		Retry:         DefaultRetryPolicy(),
	}
}

// CreatePlan diffs the desired template against the applied state and returns
// an ordered change-set. No remote calls are made.
func (e *Engine) CreatePlan(ctx context.Context, tpl *ir.Template, st *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(tpl.Resources), "state_resources", len(st.Resources))

	dag, err := BuildDAG(tpl.Resources)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{CreatedAt: time.Now().UTC()}
	planned := make(map[string]ir.ActionKind) // logical name -> planned kind
	actionID := make(map[string]string)       // logical name -> main action ID
	res := &planResolver{state: st, planned: planned}

	var prunes []*ir.Action

	for _, name := range dag.Order() {
		r, _ := tpl.ResourceByName(name)
		sc, ok := e.schemas.ForType(r.Type)
		if !ok {
			return nil, &ir.SchemaViolationError{Resource: name, Reason: fmt.Sprintf("unknown resource type %q", r.Type)}
		}

		desired, unknown := ir.ResolveProperties(r.Properties, res)
		desired = normalize(desired).(map[string]any)

		prior, exists := st.Resources[name]

		a := &ir.Action{
			Resource:     name,
			Type:         r.Type,
			Provider:     r.Provider,
			Rank:         dag.Rank(name),
			Desired:      r.Properties,
			Dependencies: dag.Dependencies(name),
		}

		switch {
		case !exists:
			a.Kind = ir.ActionCreate
			a.Diff = createDiff(desired, unknown)

		default:
			a.Prior = prior.Inputs
			a.PriorID = prior.RemoteID
			diff := propertyDiff(prior.Inputs, desired, unknown, sc)
			if len(diff) == 0 {
				a.Kind = ir.ActionNoOp
			} else if forcesReplacement(diff) {
				if r.Lifecycle != nil && r.Lifecycle.PreventDestroy {
					return nil, fmt.Errorf("resource %s has preventDestroy set but plan requires replacement", name)
				}
				a.Kind = ir.ActionReplace
				a.Diff = diff
				a.DeleteBeforeCreate = e.deleteBeforeCreate(r, sc, dag)
			} else {
				a.Kind = ir.ActionUpdate
				a.Diff = diff
			}
		}

		a.ID = fmt.Sprintf("%s:%s", kindVerb(a.Kind), name)
		planned[name] = a.Kind
		if a.Kind != ir.ActionNoOp {
			actionID[name] = a.ID
		}
		plan.Actions = append(plan.Actions, a)
		countAction(&plan.Summary, a.Kind)

		// A create-before-delete replacement leaves the old instance running
		// until every dependent has been repointed, then prunes it.
		if a.Kind == ir.ActionReplace && !a.DeleteBeforeCreate {
			prunes = append(prunes, &ir.Action{
				ID:         "prune:" + name,
				Kind:       ir.ActionDelete,
				Resource:   name,
				Type:       r.Type,
				Provider:   r.Provider,
				Rank:       dag.Rank(name),
				Prior:      prior.Inputs,
				PriorID:    prior.RemoteID,
				Superseded: true,
			})
			plan.Summary.Delete++
		}
	}

	// Ordering edges for mutating actions: each action waits for the main
	// action of every dependency that is itself changing.
	for _, a := range plan.Actions {
		if a.Kind == ir.ActionNoOp {
			continue
		}
		for _, dep := range dag.Dependencies(a.Resource) {
			if id, ok := actionID[dep]; ok {
				a.After = append(a.After, id)
			}
		}
	}
	for _, p := range prunes {
		p.After = append(p.After, "replace:"+p.Resource)
		for _, dependent := range dag.Dependents(p.Resource) {
			if id, ok := actionID[dependent]; ok {
				p.After = append(p.After, id)
			}
		}
	}

	// Resources present in state but absent from the template are deleted,
	// dependents before dependencies.
	deletes, err := e.planOrphanDeletes(tpl, st)
	if err != nil {
		return nil, err
	}
	plan.Actions = append(plan.Actions, deletes...)
	plan.Summary.Delete += len(deletes)
	plan.Actions = append(plan.Actions, prunes...)

	if err := checkConflicts(plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// CreateDestroyPlan returns a plan that deletes every resource in state,
// dependents before dependencies. The template is only consulted for
// preventDestroy markers.
func (e *Engine) CreateDestroyPlan(ctx context.Context, tpl *ir.Template, st *ir.State) (*ir.Plan, error) {
	if tpl != nil {
		for name := range st.Resources {
			r, ok := tpl.ResourceByName(name)
			if !ok {
				continue
			}
			if r.Lifecycle != nil && r.Lifecycle.PreventDestroy {
				return nil, fmt.Errorf("resource %s has preventDestroy set and cannot be destroyed", name)
			}
		}
	}

	deletes, err := e.planOrphanDeletes(&ir.Template{}, st)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{CreatedAt: time.Now().UTC(), Actions: deletes}
	plan.Summary.Delete = len(deletes)
	return plan, nil
}

// planOrphanDeletes returns Delete actions, in reverse topological order, for
// every state entry no longer declared in the template.
func (e *Engine) planOrphanDeletes(tpl *ir.Template, st *ir.State) ([]*ir.Action, error) {
	orphans := make(map[string]*ir.ResourceState)
	for name, rs := range st.Resources {
		if _, ok := tpl.ResourceByName(name); !ok {
			orphans[name] = rs
		}
	}
	if len(orphans) == 0 {
		return nil, nil
	}

	dag, err := BuildDAGFromState(orphans)
	if err != nil {
		return nil, err
	}

	var out []*ir.Action
	ids := make(map[string]string)
	for _, name := range dag.ReverseOrder() {
		rs := orphans[name]
		a := &ir.Action{
			ID:       "delete:" + name,
			Kind:     ir.ActionDelete,
			Resource: name,
			Type:     rs.Type,
			Provider: rs.Provider,
			Rank:     dag.Rank(name),
			Prior:    rs.Inputs,
			PriorID:  rs.RemoteID,
			Diff:     deleteDiff(rs.Inputs),
		}
		// a dependency may only be removed after everything that depends on
		// it is gone
		for _, dependent := range dag.Dependents(name) {
			if id, ok := ids[dependent]; ok {
				a.After = append(a.After, id)
			}
		}
		ids[name] = a.ID
		out = append(out, a)
	}
	return out, nil
}

// deleteBeforeCreate selects the replacement strategy: create-before-delete
// whenever the type policy asks for it or other resources still reference
// this one, unless the resource explicitly opts out.
func (e *Engine) deleteBeforeCreate(r *ir.Resource, sc *schema.Schema, dag *DAG) bool {
	if r.Lifecycle != nil && r.Lifecycle.DeleteBeforeCreate {
		return true
	}
	if sc.CreateBeforeDelete {
		return false
	}
	return len(dag.Dependents(r.Name)) == 0
}

// checkConflicts fails if two actions would race on one remote identifier.
// The replace/prune pair is exempt: the replace targets the successor
// instance, the prune the superseded one.
func checkConflicts(plan *ir.Plan) error {
	byID := make(map[string]string)
	for _, a := range plan.Actions {
		if a.PriorID == "" || a.Kind == ir.ActionNoOp {
			continue
		}
		if a.Superseded {
			continue
		}
		if other, ok := byID[a.PriorID]; ok {
			return &ir.PlanConflictError{RemoteID: a.PriorID, Actions: []string{other, a.ID}}
		}
		byID[a.PriorID] = a.ID
	}
	return nil
}

// planResolver resolves plan-time references against applied state. A
// reference into a resource that this plan creates or replaces is unknown:
// its value only exists after apply.
type planResolver struct {
	state   *ir.State
	planned map[string]ir.ActionKind
}

func (r *planResolver) ResolveRef(target, attr string) (any, bool) {
	switch r.planned[target] {
	case ir.ActionCreate, ir.ActionReplace:
		return nil, false
	}
	rs, ok := r.state.Resources[target]
	if !ok {
		return nil, false
	}
	return rs.Attribute(attr)
}

func (r *planResolver) ResolveImport(namespace, key string) (any, bool) {
	ns, ok := r.state.Exports[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

// propertyDiff compares the applied snapshot against the resolved desired
// values. Properties in unknown resolve after apply and always count as
// changed.
func propertyDiff(prior, desired map[string]any, unknown []string, sc *schema.Schema) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	prior = normalize(prior).(map[string]any)

	keys := make(map[string]bool)
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}
	for _, k := range unknown {
		diff[k] = &ir.PropertyDiff{
			Before:            prior[k],
			Op:                "update",
			Unknown:           true,
			ForcesReplacement: sc.ForcesReplacement(k),
		}
		delete(keys, k)
	}

	for k := range keys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			diff[k] = &ir.PropertyDiff{After: desiredVal, Op: "create", ForcesReplacement: sc.ForcesReplacement(k)}
		case !inDesired:
			diff[k] = &ir.PropertyDiff{Before: priorVal, Op: "delete", ForcesReplacement: sc.ForcesReplacement(k)}
		case !reflect.DeepEqual(priorVal, desiredVal):
			diff[k] = &ir.PropertyDiff{Before: priorVal, After: desiredVal, Op: "update", ForcesReplacement: sc.ForcesReplacement(k)}
		}
	}

	return diff
}

func forcesReplacement(diff map[string]*ir.PropertyDiff) bool {
	for _, d := range diff {
		if d.ForcesReplacement {
			return true
		}
	}
	return false
}

func createDiff(desired map[string]any, unknown []string) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range desired {
		diff[k] = &ir.PropertyDiff{After: v, Op: "create"}
	}
	for _, k := range unknown {
		diff[k] = &ir.PropertyDiff{Op: "create", Unknown: true}
	}
	return diff
}

func deleteDiff(prior map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range prior {
		diff[k] = &ir.PropertyDiff{Before: v, Op: "delete"}
	}
	return diff
}

func countAction(s *ir.Summary, kind ir.ActionKind) {
	switch kind {
	case ir.ActionCreate:
		s.Create++
	case ir.ActionUpdate:
		s.Update++
	case ir.ActionReplace:
		s.Replace++
	case ir.ActionDelete:
		s.Delete++
	case ir.ActionNoOp:
		s.NoOp++
	}
}

func kindVerb(k ir.ActionKind) string {
	switch k {
	case ir.ActionCreate:
		return "create"
	case ir.ActionUpdate:
		return "update"
	case ir.ActionReplace:
		return "replace"
	case ir.ActionDelete:
		return "delete"
	default:
		return "noop"
	}
}

// normalize round-trips a value through JSON so snapshots loaded from state
// compare equal to freshly resolved values.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	if out == nil {
		switch v.(type) {
		case map[string]any:
			return map[string]any{}
		}
	}
	return out
}
