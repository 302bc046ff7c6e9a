package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "users.db")
	c, err := Open(Config{DSN: dsn, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestOpen_AppliesMigrations(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestUpsertUser_InsertsNewRecord(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	wrote, err := c.UpsertUser(ctx, UserRecord{
		ID: "u1", Email: "ann@example.com", Username: "ann",
		UID: 20000, GID: 20000, Gecos: "Ann", Home: "/home/ann", Shell: "/bin/bash",
		Etag: "etag-1",
	})
	require.NoError(t, err)
	require.True(t, wrote)

	users, err := c.GetActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "ann", users[0].Username)
	require.Equal(t, int64(20000), users[0].UID)
}

func TestUpsertUser_UnchangedRecordDegradesToTouch(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	rec := UserRecord{
		ID: "u1", Email: "ann@example.com", Username: "ann",
		UID: 20000, GID: 20000, Gecos: "Ann", Home: "/home/ann", Shell: "/bin/bash",
		Etag: "etag-1",
	}
	_, err := c.UpsertUser(ctx, rec)
	require.NoError(t, err)

	wrote, err := c.UpsertUser(ctx, rec)
	require.NoError(t, err)
	require.False(t, wrote, "identical record should degrade to a touch, not a write")
}

func TestUpsertUser_ChangedFieldForcesWrite(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	rec := UserRecord{
		ID: "u1", Email: "ann@example.com", Username: "ann",
		UID: 20000, GID: 20000, Gecos: "Ann", Home: "/home/ann", Shell: "/bin/bash",
	}
	_, err := c.UpsertUser(ctx, rec)
	require.NoError(t, err)

	rec.Shell = "/bin/zsh"
	wrote, err := c.UpsertUser(ctx, rec)
	require.NoError(t, err)
	require.True(t, wrote)

	users, err := c.GetActiveUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "/bin/zsh", users[0].Shell)
}

func TestUpsertUser_ReactivatesInactiveRecord(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	rec := UserRecord{ID: "u1", Email: "ann@example.com", Username: "ann", UID: 20000, GID: 20000}
	_, err := c.UpsertUser(ctx, rec)
	require.NoError(t, err)

	n, err := c.DeactivateMissingUsers(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	users, err := c.GetActiveUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)

	wrote, err := c.UpsertUser(ctx, rec)
	require.NoError(t, err)
	require.True(t, wrote, "reactivating an inactive row counts as a write")

	users, err = c.GetActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestTouchUserActive_UnknownIDReturnsNotFound(t *testing.T) {
	c := openTestCache(t)
	err := c.TouchUserActive(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateMissingUsers_KeepsPresentIDs(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, err := c.UpsertUser(ctx, UserRecord{ID: "u1", Username: "ann", UID: 20000, GID: 20000})
	require.NoError(t, err)
	_, err = c.UpsertUser(ctx, UserRecord{ID: "u2", Username: "bob", UID: 20001, GID: 20001})
	require.NoError(t, err)

	n, err := c.DeactivateMissingUsers(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	users, err := c.GetActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "ann", users[0].Username)
}

func TestGetActiveUsers_OrderedByUIDThenUsername(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, err := c.UpsertUser(ctx, UserRecord{ID: "u2", Username: "bob", UID: 20001, GID: 20001})
	require.NoError(t, err)
	_, err = c.UpsertUser(ctx, UserRecord{ID: "u1", Username: "ann", UID: 20000, GID: 20000})
	require.NoError(t, err)

	users, err := c.GetActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "ann", users[0].Username)
	require.Equal(t, "bob", users[1].Username)
}

func TestReplaceGroups_ReassignsGIDsAcrossRuns(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceGroups(ctx, []GroupRecord{
		{GroupID: "g1", Name: "eng", GID: 30000},
		{GroupID: "g2", Name: "ops", GID: 30001},
	}))

	groups, err := c.GetActiveGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, int64(30000), groups[0].GID)

	// Swap the GIDs on the next pass — this would transiently violate the
	// active-GID unique index without the negative-sentinel staging step.
	require.NoError(t, c.ReplaceGroups(ctx, []GroupRecord{
		{GroupID: "g1", Name: "eng", GID: 30001},
		{GroupID: "g2", Name: "ops", GID: 30000},
	}))

	groups, err = c.GetActiveGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "ops", groups[0].Name)
	require.Equal(t, int64(30000), groups[0].GID)
	require.Equal(t, "eng", groups[1].Name)
	require.Equal(t, int64(30001), groups[1].GID)
}

func TestReplaceGroups_DeactivatesAndPurgesVanishedGroup(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceGroups(ctx, []GroupRecord{{GroupID: "g1", Name: "eng", GID: 30000}}))
	require.NoError(t, c.ReplaceMemberships(ctx, "g1", []string{"ann"}))

	require.NoError(t, c.ReplaceGroups(ctx, nil))

	groups, err := c.GetActiveGroups(ctx)
	require.NoError(t, err)
	require.Empty(t, groups)

	members, err := c.GetMembersFor(ctx, "g1")
	require.NoError(t, err)
	require.Empty(t, members, "memberships of a deactivated group must be purged")
}

func TestReplaceMemberships_ReplacesWholesaleAndDedupes(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceMemberships(ctx, "g1", []string{"bob", "ann", "ann"}))
	members, err := c.GetMembersFor(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, []string{"ann", "bob"}, members)

	require.NoError(t, c.ReplaceMemberships(ctx, "g1", []string{"carl"}))
	members, err = c.GetMembersFor(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, []string{"carl"}, members)
}

func TestMetaGetSet_RoundTrips(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, err := c.MetaGet(ctx, "last_snapshot_hash")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.MetaSet(ctx, "last_snapshot_hash", "abc123"))
	v, err := c.MetaGet(ctx, "last_snapshot_hash")
	require.NoError(t, err)
	require.Equal(t, "abc123", v)

	require.NoError(t, c.MetaSet(ctx, "last_snapshot_hash", "def456"))
	v, err = c.MetaGet(ctx, "last_snapshot_hash")
	require.NoError(t, err)
	require.Equal(t, "def456", v)
}

func TestAllocatorCursor_FallsBackThenPersists(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	next, err := c.GetAllocatorCursor(ctx, "uid", 20000)
	require.NoError(t, err)
	require.Equal(t, int64(20000), next)

	require.NoError(t, c.SetAllocatorCursor(ctx, "uid", 20005))

	next, err = c.GetAllocatorCursor(ctx, "uid", 20000)
	require.NoError(t, err)
	require.Equal(t, int64(20005), next)

	// A different kind's fallback is independent.
	gidNext, err := c.GetAllocatorCursor(ctx, "gid", 30000)
	require.NoError(t, err)
	require.Equal(t, int64(30000), gidNext)
}
