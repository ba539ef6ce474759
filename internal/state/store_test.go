package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herculesaleixo/stackform/internal/ir"
)

func openLocal(t *testing.T, path string) *Manager {
	t.Helper()
	mgr, err := Open(context.Background(), NewLocalBackend(path))
	require.NoError(t, err)
	return mgr
}

func TestOpen_FreshState(t *testing.T) {
	mgr := openLocal(t, filepath.Join(t.TempDir(), "state.json"))

	st := mgr.Snapshot()
	assert.Equal(t, 1, st.Version)
	assert.NotEmpty(t, st.Lineage)
	assert.Equal(t, 0, st.Serial)
	assert.Empty(t, st.Resources)
}

func TestManager_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	mgr := openLocal(t, filepath.Join(t.TempDir(), "state.json"))

	rs := &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null",
		RemoteID: "null-web-1",
		Inputs:   map[string]any{"size": "small"},
	}
	require.NoError(t, mgr.Put(ctx, rs))
	assert.Equal(t, 1, mgr.Snapshot().Serial)

	got, ok := mgr.Get("web")
	require.True(t, ok)
	assert.Equal(t, "null-web-1", got.RemoteID)

	require.NoError(t, mgr.Delete(ctx, "web"))
	_, ok = mgr.Get("web")
	assert.False(t, ok)
	assert.Equal(t, 2, mgr.Snapshot().Serial)
}

func TestManager_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	mgr := openLocal(t, path)
	lineage := mgr.Snapshot().Lineage
	require.NoError(t, mgr.Put(ctx, &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null", RemoteID: "null-web-1",
	}))

	reopened := openLocal(t, path)
	assert.Equal(t, lineage, reopened.Snapshot().Lineage)
	assert.Equal(t, 1, reopened.Snapshot().Serial)
	got, ok := reopened.Get("web")
	require.True(t, ok)
	assert.Equal(t, "null-web-1", got.RemoteID)
}

func TestManager_ListSorted(t *testing.T) {
	ctx := context.Background()
	mgr := openLocal(t, filepath.Join(t.TempDir(), "state.json"))

	for _, name := range []string{"zulu", "alpha", "mike"} {
		require.NoError(t, mgr.Put(ctx, &ir.ResourceState{Name: name, Type: "null:Resource", Provider: "null"}))
	}

	var names []string
	for _, rs := range mgr.List() {
		names = append(names, rs.Name)
	}
	assert.Equal(t, []string{"alpha", "mike", "zulu"}, names)
}

func TestManager_PublishOutputs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	mgr := openLocal(t, path)

	outputs := map[string]any{"url": "http://example.com", "port": float64(8080)}
	exports := map[string]any{"url": "http://example.com"}
	require.NoError(t, mgr.PublishOutputs(ctx, "web", outputs, exports))

	v, ok := mgr.Export("web", "url")
	require.True(t, ok)
	assert.Equal(t, "http://example.com", v)

	_, ok = mgr.Export("web", "port")
	assert.False(t, ok, "only exported outputs are importable")
	_, ok = mgr.Export("ghost", "url")
	assert.False(t, ok)

	reopened := openLocal(t, path)
	v, ok = reopened.Export("web", "url")
	require.True(t, ok)
	assert.Equal(t, "http://example.com", v)
	assert.Equal(t, outputs, reopened.Snapshot().Outputs)
}

func TestManager_SnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	mgr := openLocal(t, filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, mgr.Put(ctx, &ir.ResourceState{
		Name: "web", Type: "null:Resource", Provider: "null", RemoteID: "null-web-1",
	}))

	snap := mgr.Snapshot()
	snap.Resources["web"].RemoteID = "mutated"
	delete(snap.Resources, "web")

	got, ok := mgr.Get("web")
	require.True(t, ok)
	assert.Equal(t, "null-web-1", got.RemoteID)
}

func TestLocalBackend_Lock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	backend := NewLocalBackend(path)

	require.NoError(t, backend.Lock())

	err := backend.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, backend.Unlock())
	require.NoError(t, backend.Lock())
	require.NoError(t, backend.Unlock())

	// unlocking an unlocked state is not an error
	assert.NoError(t, backend.Unlock())
}

func TestNewBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	b, err := NewBackend("local", nil, path)
	require.NoError(t, err)
	assert.NotNil(t, b)

	b, err = NewBackend("", nil, path)
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = NewBackend("ftp", nil, path)
	require.Error(t, err)
}
