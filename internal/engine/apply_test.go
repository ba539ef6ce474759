package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/remote"
	"github.com/herculesaleixo/stackform/internal/state"
	"github.com/herculesaleixo/stackform/providers/null"
)

func newTestStore(t *testing.T) *state.Manager {
	t.Helper()
	backend, err := state.NewBackend("local", nil, filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	mgr, err := state.Open(context.Background(), backend)
	require.NoError(t, err)
	return mgr
}

func fastEngine(eng *Engine) *Engine {
	eng.PollInterval = time.Millisecond
	eng.Retry = &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return eng
}

// callIndex finds the first matching recorded call at or past from.
func callIndex(calls []null.Call, op, name, id string, from int) int {
	for i := from; i < len(calls); i++ {
		c := calls[i]
		if c.Op != op {
			continue
		}
		if name != "" && c.Name != name {
			continue
		}
		if id != "" && c.ID != id {
			continue
		}
		return i
	}
	return -1
}

func TestApply_CreateAndPersist(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("base", map[string]ir.Expr{"size": ir.Lit{Value: "small"}}),
			nullResource("svc", map[string]ir.Expr{
				"upstream": ir.Ref{Target: "base", Attr: "id"},
			}),
		},
	}

	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)

	report, err := eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.ElementsMatch(t, []string{"create:base", "create:svc"}, report.Succeeded)
	assert.Equal(t, 2, store.Objects())

	base, ok := mgr.Get("base")
	require.True(t, ok)
	assert.NotEmpty(t, base.RemoteID)

	// the reference was resolved against the freshly created instance
	svc, ok := mgr.Get("svc")
	require.True(t, ok)
	assert.Equal(t, base.RemoteID, svc.Inputs["upstream"])
	assert.Equal(t, []string{"base"}, svc.Dependencies)
	assert.Greater(t, mgr.Snapshot().Serial, 0)

	// a second plan over the applied state converges to no changes
	replan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)
	assert.True(t, replan.Empty())
}

func TestApply_FailureAbortsDependents(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	store.FailCreate["a"] = []error{remote.Permanent(errors.New("quota exceeded"))}

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("a", nil),
			nullResource("b", map[string]ir.Expr{"upstream": ir.Ref{Target: "a", Attr: "id"}}),
			nullResource("c", nil),
		},
	}

	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)

	report, err := eng.ApplyPlan(ctx, plan, mgr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply incomplete")

	assert.Equal(t, []string{"create:a"}, report.Failed)
	assert.Equal(t, []string{"create:b"}, report.Aborted)
	assert.Equal(t, []string{"create:c"}, report.Succeeded)

	var actionErr *ir.ActionFailedError
	require.ErrorAs(t, report.Errors["create:a"], &actionErr)

	// the failed and aborted resources never reached state
	_, ok := mgr.Get("a")
	assert.False(t, ok)
	_, ok = mgr.Get("b")
	assert.False(t, ok)
	_, ok = mgr.Get("c")
	assert.True(t, ok)
}

func TestApply_TransientErrorIsRetried(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	store.FailCreate["a"] = []error{remote.Transient(errors.New("throttled"))}

	tpl := &ir.Template{Resources: []*ir.Resource{nullResource("a", nil)}}
	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)

	report, err := eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)
	assert.True(t, report.OK())

	creates := 0
	for _, c := range store.Calls() {
		if c.Op == "create" && c.Name == "a" {
			creates++
		}
	}
	assert.Equal(t, 2, creates)
}

func TestApply_ReplaceCreateBeforeDelete(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	tpl := &ir.Template{
		Resources: []*ir.Resource{
			nullResource("base", map[string]ir.Expr{
				"triggers": ir.Map{Entries: map[string]ir.Expr{"rev": ir.Lit{Value: "1"}}},
			}),
			nullResource("svc", map[string]ir.Expr{
				"upstream": ir.Ref{Target: "base", Attr: "id"},
			}),
		},
	}

	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)
	_, err = eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)

	oldBase, _ := mgr.Get("base")
	oldID := oldBase.RemoteID

	// bump the replace-on-change property
	tpl.Resources[0] = nullResource("base", map[string]ir.Expr{
		"triggers": ir.Map{Entries: map[string]ir.Expr{"rev": ir.Lit{Value: "2"}}},
	})

	plan, err = eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)
	report, err := eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"replace:base", "update:svc", "prune:base"}, report.Succeeded)

	newBase, _ := mgr.Get("base")
	assert.NotEqual(t, oldID, newBase.RemoteID)
	assert.Equal(t, 2, store.Objects())

	svc, _ := mgr.Get("svc")
	assert.Equal(t, newBase.RemoteID, svc.Inputs["upstream"])

	// the new instance exists before the dependent repoints, and the old
	// instance is only removed after that
	calls := store.Calls()
	firstCreate := callIndex(calls, "create", "base", "", 0)
	require.GreaterOrEqual(t, firstCreate, 0)
	newCreate := callIndex(calls, "create", "base", "", firstCreate+1)
	require.GreaterOrEqual(t, newCreate, 0)
	repoint := callIndex(calls, "update", "svc", "", 0)
	require.GreaterOrEqual(t, repoint, 0)
	pruneOld := callIndex(calls, "delete", "", oldID, 0)
	require.GreaterOrEqual(t, pruneOld, 0)
	assert.Less(t, newCreate, repoint)
	assert.Less(t, repoint, pruneOld)
}

func TestApply_ReadinessPolling(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	store.ReadyAfter["null-a-1"] = 2

	tpl := &ir.Template{Resources: []*ir.Resource{nullResource("a", nil)}}
	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)

	_, err = eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)

	probes := 0
	for _, c := range store.Calls() {
		if c.Op == "ready" && c.ID == "null-a-1" {
			probes++
		}
	}
	assert.Equal(t, 3, probes)
}

func TestApply_DeleteRemovesState(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	tpl := &ir.Template{Resources: []*ir.Resource{nullResource("a", nil)}}
	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)
	_, err = eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)
	require.Equal(t, 1, store.Objects())

	plan, err = eng.CreatePlan(ctx, &ir.Template{}, mgr.Snapshot())
	require.NoError(t, err)
	report, err := eng.ApplyPlan(ctx, plan, mgr)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete:a"}, report.Succeeded)

	_, ok := mgr.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Objects())
}

func TestApply_CancelledContextAbortsEverything(t *testing.T) {
	eng, store := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	tpl := &ir.Template{Resources: []*ir.Resource{nullResource("a", nil)}}
	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)

	cancel()
	report, err := eng.ApplyPlan(ctx, plan, mgr)
	require.Error(t, err)
	assert.Equal(t, []string{"create:a"}, report.Aborted)
	assert.Empty(t, store.Calls())
}

func TestApply_CallbackEvents(t *testing.T) {
	eng, _ := newTestEngine(t)
	fastEngine(eng)
	mgr := newTestStore(t)
	ctx := context.Background()

	tpl := &ir.Template{Resources: []*ir.Resource{nullResource("a", nil)}}
	plan, err := eng.CreatePlan(ctx, tpl, mgr.Snapshot())
	require.NoError(t, err)

	var statuses []string
	_, err = eng.ApplyPlanWithCallback(ctx, plan, mgr, func(ev ApplyEvent) {
		statuses = append(statuses, ev.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"started", "succeeded"}, statuses)
}
