package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fluidnumerics/idsync/internal/allocate"
	"github.com/fluidnumerics/idsync/internal/cache"
	"github.com/fluidnumerics/idsync/internal/directory"
)

// Run drives one full sync pass (spec.md §4.4): users are reconciled
// first, then — if group sync is enabled — groups and their memberships,
// since membership resolution needs the just-updated user cache.
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.SyncDuration.Observe(time.Since(start).Seconds())
		}
	}()

	presentIDs, err := r.syncUsers(ctx)
	if err != nil {
		return wrapf("sync users", err)
	}

	deactivated, err := r.cache.DeactivateMissingUsers(ctx, presentIDs)
	if err != nil {
		return wrapf("deactivate missing users", err)
	}
	if deactivated > 0 {
		r.logger.Info("deactivated users absent from directory", zap.Int64("count", deactivated))
	}

	if !r.cfg.GroupSync {
		return nil
	}
	if err := r.syncGroups(ctx); err != nil {
		return wrapf("sync groups", err)
	}
	return nil
}

// syncUsers implements spec.md §4.4 step 1: fetch, filter, normalise, and
// upsert every upstream user, returning the set of ids seen so the caller
// can deactivate the rest.
func (r *Reconciler) syncUsers(ctx context.Context) ([]string, error) {
	var presentIDs []string
	var wrote, touched, skipped int

	err := r.dir.ListUsers(ctx, r.cfg.Scope, func(u directory.User) error {
		if u.Deleted || u.Suspended {
			return nil
		}

		acct, ok := u.PrimaryPosixAccount()
		if !ok || acct.UID == nil || acct.GID == nil {
			skipped++
			return nil
		}

		rec := r.normalizeUser(u, acct)
		presentIDs = append(presentIDs, u.ID)

		didWrite, err := r.cache.UpsertUser(ctx, rec)
		if err != nil {
			return err
		}
		if didWrite {
			wrote++
		} else {
			touched++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("user sync complete",
		zap.Int("upserted", wrote),
		zap.Int("touched", touched),
		zap.Int("skipped_malformed", skipped),
	)
	return presentIDs, nil
}

// normalizeUser applies spec.md §4.4 step 1's normalisation: sanitise the
// username (falling back to the primary-email local-part when no username
// is present), default shell and home from configured templates, default
// gecos to the display name or the username.
func (r *Reconciler) normalizeUser(u directory.User, acct directory.PosixAccount) cache.UserRecord {
	raw := acct.Username
	if raw == "" {
		raw = localPart(u.PrimaryEmail)
	}
	username := allocate.SanitizeUsername(raw, r.cfg.StripSuffix)

	shell := acct.Shell
	if shell == "" {
		shell = r.cfg.DefaultShell
	}
	home := acct.HomeDirectory
	if home == "" {
		home = r.homeDir(username)
	}
	gecos := acct.Gecos
	if gecos == "" {
		gecos = u.Name
	}
	if gecos == "" {
		gecos = username
	}

	return cache.UserRecord{
		ID:       u.ID,
		Email:    u.PrimaryEmail,
		Username: username,
		UID:      *acct.UID,
		GID:      *acct.GID,
		Gecos:    gecos,
		Home:     home,
		Shell:    shell,
		Etag:     u.Etag,
	}
}

// syncGroups implements spec.md §4.4 step 3: assign GIDs to every upstream
// group, deterministically and ahead of any membership query, then resolve
// and persist each group's membership.
func (r *Reconciler) syncGroups(ctx context.Context) error {
	activeUsers, err := r.cache.GetActiveUsers(ctx)
	if err != nil {
		return err
	}

	usedGIDs := make(map[int64]bool, len(activeUsers))
	emailToUsername := make(map[string]string, len(activeUsers))
	for _, u := range activeUsers {
		usedGIDs[u.GID] = true
		emailToUsername[strings.ToLower(u.Email)] = u.Username
	}

	var groups []directory.Group
	err = r.dir.ListGroups(ctx, r.cfg.Scope, func(g directory.Group) error {
		groups = append(groups, g)
		return nil
	})
	if err != nil {
		return err
	}

	groupIDs := make([]string, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}

	gids, err := allocate.DeterministicGID(groupIDs, r.cfg.GroupGIDs, usedGIDs)
	if err != nil {
		return err
	}

	records := make([]cache.GroupRecord, 0, len(groups))
	for _, g := range groups {
		records = append(records, cache.GroupRecord{
			GroupID: g.ID,
			Email:   g.Email,
			Name:    g.Name,
			GID:     gids[g.ID],
			Etag:    g.Etag,
		})
	}
	if err := r.cache.ReplaceGroups(ctx, records); err != nil {
		return err
	}

	// Sorting here is cosmetic for log determinism; assignment order above
	// already follows spec.md §4.2's ascending-lexicographic rule.
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })

	for _, g := range groups {
		members, err := r.resolveMembers(ctx, g, emailToUsername)
		if err != nil {
			return err
		}
		if err := r.cache.ReplaceMemberships(ctx, g.ID, members); err != nil {
			return err
		}
	}

	r.logger.Info("group sync complete", zap.Int("groups", len(groups)))
	return nil
}

// resolveMembers fetches g's members via the Directory Client and resolves
// each USER/ACTIVE member's email to a cached username, case-insensitively
// (spec.md §4.4 step 3, §9 "member email case sensitivity").
func (r *Reconciler) resolveMembers(ctx context.Context, g directory.Group, emailToUsername map[string]string) ([]string, error) {
	var usernames []string
	groupKey := g.Email
	if groupKey == "" {
		groupKey = g.ID
	}

	err := r.dir.ListGroupMembers(ctx, groupKey, func(m directory.Member) error {
		if m.Type != "USER" || m.Status != "ACTIVE" {
			return nil
		}
		if username, ok := emailToUsername[strings.ToLower(m.Email)]; ok {
			usernames = append(usernames, username)
		}
		return nil
	})
	return usernames, err
}
