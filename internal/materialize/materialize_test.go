package materialize

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluidnumerics/idsync/internal/cache"
)

type fakeStore struct {
	users      []cache.User
	groups     []cache.Group
	membership map[string][]string
	meta       map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{membership: map[string][]string{}, meta: map[string]string{}}
}

func (f *fakeStore) GetActiveUsers(context.Context) ([]cache.User, error)   { return f.users, nil }
func (f *fakeStore) GetActiveGroups(context.Context) ([]cache.Group, error) { return f.groups, nil }
func (f *fakeStore) GetMembersFor(_ context.Context, groupID string) ([]string, error) {
	return f.membership[groupID], nil
}
func (f *fakeStore) MetaGet(_ context.Context, key string) (string, error) {
	v, ok := f.meta[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return v, nil
}
func (f *fakeStore) MetaSet(_ context.Context, key, value string) error {
	f.meta[key] = value
	return nil
}

func newMaterialiser(t *testing.T, store Store) (*Materialiser, string) {
	t.Helper()
	dir := t.TempDir()
	m := New(store, dir, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, time.July, 29, 12, 0, 0, 0, time.UTC) }
	return m, dir
}

func TestRender_WritesFilesOnFirstRun(t *testing.T) {
	store := newFakeStore()
	store.users = []cache.User{
		{Username: "alice", UID: 20000, GID: 20000, Gecos: "Alice A.", Home: "/home/alice", Shell: "/bin/bash"},
	}
	m, dir := newMaterialiser(t, store)

	result, err := m.Render(context.Background())
	require.NoError(t, err)
	require.True(t, result.Written)

	passwd, err := os.ReadFile(filepath.Join(dir, "passwd"))
	require.NoError(t, err)
	require.Equal(t, "alice:x:20000:20000:Alice A.:/home/alice:/bin/bash\n", string(passwd))

	shadow, err := os.ReadFile(filepath.Join(dir, "shadow"))
	require.NoError(t, err)
	require.Contains(t, string(shadow), "alice:!:")

	info, err := os.Stat(filepath.Join(dir, "shadow"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0640), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dir, "passwd"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestRender_SecondRunIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.users = []cache.User{
		{Username: "alice", UID: 20000, GID: 20000, Gecos: "Alice A.", Home: "/home/alice", Shell: "/bin/bash"},
	}
	m, dir := newMaterialiser(t, store)

	_, err := m.Render(context.Background())
	require.NoError(t, err)

	before, err := os.Stat(filepath.Join(dir, "passwd"))
	require.NoError(t, err)

	result, err := m.Render(context.Background())
	require.NoError(t, err)
	require.False(t, result.Written)

	after, err := os.Stat(filepath.Join(dir, "passwd"))
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
}

func TestRenderGroup_ImplicitPrimaryGroupNaming(t *testing.T) {
	users := []cache.User{
		{Username: "alice", UID: 20000, GID: 20000},
		{Username: "bob", UID: 20001, GID: 20001},
		{Username: "carol", UID: 20002, GID: 20001},
	}
	out := renderGroup(users, nil, nil)
	require.Contains(t, out, "alice:x:20000:\n")
	require.Contains(t, out, "grp20001:x:20001:\n")
}

func TestRenderGroup_DirectoryGroupMembersSorted(t *testing.T) {
	groups := []cache.Group{{GroupID: "g1", Name: "team", GID: 30000}}
	membership := map[string][]string{"g1": {"zed", "alice", "bob"}}
	out := renderGroup(nil, groups, membership)
	require.Equal(t, "team:x:30000:alice,bob,zed\n", out)
}

func TestPreview_DoesNotWriteOrTouchMeta(t *testing.T) {
	store := newFakeStore()
	store.users = []cache.User{
		{Username: "alice", UID: 20000, GID: 20000, Gecos: "Alice A.", Home: "/home/alice", Shell: "/bin/bash"},
	}
	m, dir := newMaterialiser(t, store)

	preview, err := m.Preview(context.Background())
	require.NoError(t, err)
	require.Equal(t, "alice:x:20000:20000:Alice A.:/home/alice:/bin/bash\n", preview.Passwd)
	require.NotEmpty(t, preview.Hash)

	_, statErr := os.Stat(filepath.Join(dir, "passwd"))
	require.True(t, os.IsNotExist(statErr), "Preview must not write any file")
	_, metaErr := store.MetaGet(context.Background(), snapshotHashKey)
	require.ErrorIs(t, metaErr, cache.ErrNotFound, "Preview must not touch the snapshot hash")
}

func TestRender_CreatesMissingOutdir(t *testing.T) {
	store := newFakeStore()
	store.users = []cache.User{{Username: "alice", UID: 20000, GID: 20000}}

	nested := filepath.Join(t.TempDir(), "nested", "extrausers")
	m := New(store, nested, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, time.July, 29, 12, 0, 0, 0, time.UTC) }

	result, err := m.Render(context.Background())
	require.NoError(t, err)
	require.True(t, result.Written)

	_, err = os.Stat(filepath.Join(nested, "passwd"))
	require.NoError(t, err)
}

func TestSnapshotHash_Deterministic(t *testing.T) {
	h1 := snapshotHash("passwd", "group", "shadow")
	h2 := snapshotHash("passwd", "group", "shadow")
	require.Equal(t, h1, h2)
	h3 := snapshotHash("passwd2", "group", "shadow")
	require.NotEqual(t, h1, h3)
}
