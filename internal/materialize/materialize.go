// Package materialize is the Materialiser (spec.md §4.5): it renders
// passwd, group, and shadow text from the Identity Cache, detects a no-op
// via a content hash stored in cache meta, and writes changed files
// atomically with the correct modes.
package materialize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fluidnumerics/idsync/internal/cache"
	"github.com/fluidnumerics/idsync/internal/telemetry"
)

const snapshotHashKey = "last_snapshot_hash"

// Store is the subset of *cache.Cache the Materialiser reads from.
type Store interface {
	GetActiveUsers(ctx context.Context) ([]cache.User, error)
	GetActiveGroups(ctx context.Context) ([]cache.Group, error)
	GetMembersFor(ctx context.Context, groupID string) ([]string, error)
	MetaGet(ctx context.Context, key string) (string, error)
	MetaSet(ctx context.Context, key, value string) error
}

// Materialiser renders the three extrausers flat files from a Store.
type Materialiser struct {
	store   Store
	outdir  string
	logger  *zap.Logger
	now     func() time.Time
	metrics *telemetry.Metrics
}

// New creates a Materialiser writing into outdir.
func New(store Store, outdir string, logger *zap.Logger) *Materialiser {
	return &Materialiser{
		store:  store,
		outdir: outdir,
		logger: logger.Named("materialize"),
		now:    func() time.Time { return time.Now() },
	}
}

// WithMetrics attaches a telemetry.Metrics to m (SPEC_FULL.md §6).
// Optional — a Materialiser with no attached metrics still functions.
func (m *Materialiser) WithMetrics(t *telemetry.Metrics) *Materialiser {
	m.metrics = t
	return m
}

// Result reports what Render did.
type Result struct {
	Written bool
	Hash    string
}

// Preview is the rendered, not-yet-written content of the three extrausers
// files — what dry-run mode prints instead of committing (spec.md §6
// "dry_run ... print the plan / would-be files", supplementing the original
// sync script's `# ---- PASSWD ----` / `# ---- GROUP ----` / `# ---- SHADOW
// ----` blocks, SPEC_FULL.md §9 item 1).
type Preview struct {
	Passwd string
	Group  string
	Shadow string
	Hash   string
}

// Preview builds passwd/group/shadow from the cache without writing
// anything or touching the snapshot hash in meta — a read-only look at
// what Render would produce.
func (m *Materialiser) Preview(ctx context.Context) (Preview, error) {
	passwdText, groupText, shadowText, hash, _, _, err := m.build(ctx)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Passwd: passwdText, Group: groupText, Shadow: shadowText, Hash: hash}, nil
}

// Render builds passwd/group/shadow from the cache and writes them if (and
// only if) their combined content hash differs from the last recorded
// snapshot (spec.md §4.5 "Change detection").
func (m *Materialiser) Render(ctx context.Context) (Result, error) {
	passwdText, groupText, shadowText, hash, numUsers, numGroups, err := m.build(ctx)
	if err != nil {
		return Result{}, err
	}

	prev, err := m.store.MetaGet(ctx, snapshotHashKey)
	if err != nil && err != cache.ErrNotFound {
		return Result{}, fmt.Errorf("materialize: get snapshot hash: %w", err)
	}
	if prev == hash {
		m.logger.Debug("no changes detected, skipping write", zap.String("hash", hash))
		return Result{Written: false, Hash: hash}, nil
	}

	if err := os.MkdirAll(m.outdir, 0755); err != nil {
		return Result{}, fmt.Errorf("materialize: create outdir %s: %w", m.outdir, err)
	}

	files := map[string]struct {
		text string
		mode os.FileMode
	}{
		"passwd": {passwdText, 0644},
		"group":  {groupText, 0644},
		"shadow": {shadowText, 0640},
	}
	for name, f := range files {
		if err := atomicWrite(filepath.Join(m.outdir, name), f.text, f.mode); err != nil {
			return Result{}, fmt.Errorf("materialize: write %s: %w", name, err)
		}
	}

	if err := m.store.MetaSet(ctx, snapshotHashKey, hash); err != nil {
		return Result{}, fmt.Errorf("materialize: persist snapshot hash: %w", err)
	}

	if m.metrics != nil {
		m.metrics.FilesRewritten.Inc()
	}

	m.logger.Info("rewrote extrausers files",
		zap.Int("users", numUsers),
		zap.Int("groups", numGroups),
		zap.String("hash", hash),
	)
	return Result{Written: true, Hash: hash}, nil
}

// build renders the three files from the cache and reports the gauge
// metrics, shared by Render and Preview so neither drifts from the other.
func (m *Materialiser) build(ctx context.Context) (passwdText, groupText, shadowText, hash string, numUsers, numGroups int, err error) {
	users, err := m.store.GetActiveUsers(ctx)
	if err != nil {
		return "", "", "", "", 0, 0, fmt.Errorf("materialize: get active users: %w", err)
	}
	groups, err := m.store.GetActiveGroups(ctx)
	if err != nil {
		return "", "", "", "", 0, 0, fmt.Errorf("materialize: get active groups: %w", err)
	}

	membership := make(map[string][]string, len(groups))
	for _, g := range groups {
		members, err := m.store.GetMembersFor(ctx, g.GroupID)
		if err != nil {
			return "", "", "", "", 0, 0, fmt.Errorf("materialize: get members for group %s: %w", g.GroupID, err)
		}
		membership[g.GroupID] = members
	}

	passwdText = renderPasswd(users)
	groupText = renderGroup(users, groups, membership)
	shadowText = renderShadow(users, m.now())
	hash = snapshotHash(passwdText, groupText, shadowText)

	if m.metrics != nil {
		m.metrics.UsersActive.Set(float64(len(users)))
		m.metrics.GroupsActive.Set(float64(len(groups)))
	}

	return passwdText, groupText, shadowText, hash, len(users), len(groups), nil
}

// snapshotHash computes SHA-256 over passwd + "\n--\n" + group + "\n--\n" +
// shadow (spec.md §4.5, GLOSSARY "Snapshot hash").
func snapshotHash(passwdText, groupText, shadowText string) string {
	sum := sha256.Sum256([]byte(passwdText + "\n--\n" + groupText + "\n--\n" + shadowText))
	return hex.EncodeToString(sum[:])
}

// atomicWrite writes text to path via a temp file in the same directory
// followed by chmod + rename, so readers never observe a partial file
// (spec.md §4.5 "write each file atomically").
func atomicWrite(path, text string, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
