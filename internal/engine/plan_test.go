package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/provider"
	"github.com/herculesaleixo/stackform/internal/schema"
	"github.com/herculesaleixo/stackform/providers/null"
)

func newTestEngine(t *testing.T) (*Engine, *null.Provider) {
	t.Helper()
	store := null.New()
	reg := provider.NewRegistry()
	reg.Register("null", store)
	return New(reg, schema.Builtin()), store
}

func nullResource(name string, props map[string]ir.Expr) *ir.Resource {
	return &ir.Resource{
		Name:       name,
		Type:       "null:Resource",
		Provider:   "null",
		Properties: props,
	}
}

func TestCreatePlan_Create(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("web", map[string]ir.Expr{
				"triggers": ir.Map{Entries: map[string]ir.Expr{"rev": ir.Lit{Value: "1"}}},
			}),
		},
	}

	plan, err := eng.CreatePlan(ctx, tpl, ir.NewState("test"))
	require.NoError(t, err)
	require.Len(t, plan.Changes(), 1)

	a := plan.Changes()[0]
	assert.Equal(t, ir.ActionCreate, a.Kind)
	assert.Equal(t, "create:web", a.ID)
	assert.Contains(t, a.Diff, "triggers")
	assert.Equal(t, 1, plan.Summary.Create)
}

func TestCreatePlan_NoOp(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("web", map[string]ir.Expr{"size": ir.Lit{Value: "small"}}),
		},
	}
	st := ir.NewState("test")
	st.Resources["web"] = &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null",
		RemoteID: "null-web-1",
		Inputs:   map[string]any{"size": "small"},
	}

	plan, err := eng.CreatePlan(ctx, tpl, st)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestCreatePlan_Update(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("web", map[string]ir.Expr{"size": ir.Lit{Value: "large"}}),
		},
	}
	st := ir.NewState("test")
	st.Resources["web"] = &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null",
		RemoteID: "null-web-1",
		Inputs:   map[string]any{"size": "small"},
	}

	plan, err := eng.CreatePlan(ctx, tpl, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes(), 1)

	a := plan.Changes()[0]
	assert.Equal(t, ir.ActionUpdate, a.Kind)
	require.Contains(t, a.Diff, "size")
	assert.Equal(t, "update", a.Diff["size"].Op)
	assert.Equal(t, "small", a.Diff["size"].Before)
	assert.Equal(t, "large", a.Diff["size"].After)
}

func TestCreatePlan_ReplaceNoDependents(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// triggers is a replace-on-change property
	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("web", map[string]ir.Expr{
				"triggers": ir.Map{Entries: map[string]ir.Expr{"rev": ir.Lit{Value: "2"}}},
			}),
		},
	}
	st := ir.NewState("test")
	st.Resources["web"] = &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null",
		RemoteID: "null-web-1",
		Inputs:   map[string]any{"triggers": map[string]any{"rev": "1"}},
	}

	plan, err := eng.CreatePlan(ctx, tpl, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes(), 1)

	a := plan.Changes()[0]
	assert.Equal(t, ir.ActionReplace, a.Kind)
	// nothing references web, so the old instance can go first
	assert.True(t, a.DeleteBeforeCreate)
}

func TestCreatePlan_ReplaceWithDependents(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("base", map[string]ir.Expr{
				"triggers": ir.Map{Entries: map[string]ir.Expr{"rev": ir.Lit{Value: "2"}}},
			}),
			nullResource("svc", map[string]ir.Expr{
				"upstream": ir.Ref{Target: "base", Attr: "id"},
			}),
		},
	}
	st := ir.NewState("test")
	st.Resources["base"] = &ir.ResourceState{
		Name: "base", Type: "null:Resource", Provider: "null",
		RemoteID: "null-base-1",
		Inputs:   map[string]any{"triggers": map[string]any{"rev": "1"}},
	}
	st.Resources["svc"] = &ir.ResourceState{
		Name: "svc", Type: "null:Resource", Provider: "null",
		RemoteID:     "null-svc-2",
		Inputs:       map[string]any{"upstream": "null-base-1"},
		Dependencies: []string{"base"},
	}

	plan, err := eng.CreatePlan(ctx, tpl, st)
	require.NoError(t, err)

	byID := make(map[string]*ir.Action)
	for _, a := range plan.Actions {
		byID[a.ID] = a
	}

	replace := byID["replace:base"]
	require.NotNil(t, replace)
	assert.False(t, replace.DeleteBeforeCreate, "referenced resource replaces create-before-delete")

	// svc's reference resolves only after base is recreated
	update := byID["update:svc"]
	require.NotNil(t, update)
	require.Contains(t, update.Diff, "upstream")
	assert.True(t, update.Diff["upstream"].Unknown)
	assert.Contains(t, update.After, "replace:base")

	// the superseded instance is pruned only after every dependent moved off
	prune := byID["prune:base"]
	require.NotNil(t, prune)
	assert.True(t, prune.Superseded)
	assert.Equal(t, "null-base-1", prune.PriorID)
	assert.Contains(t, prune.After, "replace:base")
	assert.Contains(t, prune.After, "update:svc")
}

func TestCreatePlan_UnknownValuesFromNewDependency(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("base", nil),
			nullResource("svc", map[string]ir.Expr{
				"upstream": ir.Ref{Target: "base", Attr: "id"},
			}),
		},
	}

	plan, err := eng.CreatePlan(ctx, tpl, ir.NewState("test"))
	require.NoError(t, err)
	require.Len(t, plan.Changes(), 2)

	var svc *ir.Action
	for _, a := range plan.Changes() {
		if a.Resource == "svc" {
			svc = a
		}
	}
	require.NotNil(t, svc)
	require.Contains(t, svc.Diff, "upstream")
	assert.True(t, svc.Diff["upstream"].Unknown)
	assert.Contains(t, svc.After, "create:base")
}

func TestCreatePlan_OrphanDelete(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	st := ir.NewState("test")
	st.Resources["base"] = &ir.ResourceState{
		Name: "base", Type: "null:Resource", Provider: "null", RemoteID: "null-base-1",
	}
	st.Resources["svc"] = &ir.ResourceState{
		Name: "svc", Type: "null:Resource", Provider: "null", RemoteID: "null-svc-2",
		Dependencies: []string{"base"},
	}

	plan, err := eng.CreatePlan(ctx, &ir.Template{}, st)
	require.NoError(t, err)

	changes := plan.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, ir.ActionDelete, changes[0].Kind)
	assert.Equal(t, ir.ActionDelete, changes[1].Kind)

	// dependents are removed before their dependencies
	assert.Equal(t, "svc", changes[0].Resource)
	assert.Equal(t, "base", changes[1].Resource)
	assert.Contains(t, changes[1].After, "delete:svc")
}

func TestCreatePlan_PreventDestroyBlocksReplacement(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	r := nullResource("web", map[string]ir.Expr{
		"triggers": ir.Map{Entries: map[string]ir.Expr{"rev": ir.Lit{Value: "2"}}},
	})
	r.Lifecycle = &ir.Lifecycle{PreventDestroy: true}

	st := ir.NewState("test")
	st.Resources["web"] = &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null",
		RemoteID: "null-web-1",
		Inputs:   map[string]any{"triggers": map[string]any{"rev": "1"}},
	}

	_, err := eng.CreatePlan(ctx, &ir.Template{Resources: []*ir.Resource{r}}, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preventDestroy")
}

func TestCreatePlan_UnknownType(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			{Name: "x", Type: "made:Up", Provider: "made"},
		},
	}

	_, err := eng.CreatePlan(ctx, tpl, ir.NewState("test"))
	var schemaErr *ir.SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
}

func TestCreatePlan_ConflictOnRemoteID(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// two state entries sharing a remote identifier would race their deletes
	st := ir.NewState("test")
	st.Resources["a"] = &ir.ResourceState{Name: "a", Type: "null:Resource", Provider: "null", RemoteID: "null-dup"}
	st.Resources["b"] = &ir.ResourceState{Name: "b", Type: "null:Resource", Provider: "null", RemoteID: "null-dup"}

	_, err := eng.CreatePlan(ctx, &ir.Template{}, st)
	var conflict *ir.PlanConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "null-dup", conflict.RemoteID)
}

func TestCreatePlan_CycleMakesNoRemoteCalls(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("a", map[string]ir.Expr{"x": ir.Ref{Target: "b", Attr: "id"}}),
			nullResource("b", map[string]ir.Expr{"x": ir.Ref{Target: "a", Attr: "id"}}),
		},
	}

	_, err := eng.CreatePlan(ctx, tpl, ir.NewState("test"))
	var cycleErr *ir.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Empty(t, store.Calls(), "planning must not touch the remote store")
}

func TestCreateDestroyPlan(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	st := ir.NewState("test")
	st.Resources["base"] = &ir.ResourceState{Name: "base", Type: "null:Resource", Provider: "null", RemoteID: "null-base-1"}
	st.Resources["svc"] = &ir.ResourceState{
		Name: "svc", Type: "null:Resource", Provider: "null", RemoteID: "null-svc-2",
		Dependencies: []string{"base"},
	}

	plan, err := eng.CreateDestroyPlan(ctx, nil, st)
	require.NoError(t, err)
	require.Len(t, plan.Changes(), 2)
	assert.Equal(t, "svc", plan.Changes()[0].Resource)
	assert.Equal(t, "base", plan.Changes()[1].Resource)
	assert.Equal(t, 2, plan.Summary.Delete)
}

func TestCreateDestroyPlan_PreventDestroy(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	r := nullResource("web", nil)
	r.Lifecycle = &ir.Lifecycle{PreventDestroy: true}
	tpl := &ir.Template{Resources: []*ir.Resource{r}}

	st := ir.NewState("test")
	st.Resources["web"] = &ir.ResourceState{Name: "web", Type: "null:Resource", Provider: "null", RemoteID: "null-web-1"}

	_, err := eng.CreateDestroyPlan(ctx, tpl, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preventDestroy")
}
