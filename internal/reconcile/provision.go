package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fluidnumerics/idsync/internal/allocate"
	"github.com/fluidnumerics/idsync/internal/directory"
)

// Assignment is one planned POSIX attribute set for a user currently
// lacking one (spec.md §4.4 provisioning variant).
type Assignment struct {
	UserID   string
	Email    string
	Username string
	UID      int64
	GID      int64
	Home     string
	Shell    string
	Gecos    string
}

// Plan is the output of Reconciler.Plan: every assignment ready to patch
// through the Directory Client, in the deterministic order they were
// derived.
type Plan struct {
	Assignments []Assignment
}

// String renders the plan as the table --dry-run prints (SPEC_FULL.md §9
// item 1 "Plan ... with a String() ... renderer"), independent of any
// side-effecting print call.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Planned assignments for %d users:\n", len(p.Assignments))
	for _, a := range p.Assignments {
		fmt.Fprintf(&b, "  %-32s uid=%d gid=%d username=%s home=%s shell=%s\n",
			a.Email, a.UID, a.GID, a.Username, a.Home, a.Shell)
	}
	return b.String()
}

// Plan harvests in_use UID/GID/username sets from every user carrying a
// POSIX attribute set — across the whole tenant, regardless of
// suspended/deleted state, so a reactivated or still-suspended user's
// prior assignment is never reused (spec.md §4.4, §9 "Transient UID
// harvesting for provisioning") — then allocates fresh assignments for
// every user with none that is neither suspended nor deleted, in upstream
// fetch order (by email).
func (r *Reconciler) Plan(ctx context.Context) (*Plan, error) {
	inUseUIDs := map[int64]bool{}
	inUseGIDs := map[int64]bool{}
	inUseUsernames := map[string]bool{}
	var candidates []directory.User

	err := r.dir.ListUsers(ctx, r.cfg.Scope, func(u directory.User) error {
		if len(u.PosixAccounts) == 0 {
			if u.Deleted || u.Suspended {
				return nil
			}
			candidates = append(candidates, u)
			return nil
		}
		for _, acct := range u.PosixAccounts {
			if acct.UID != nil {
				inUseUIDs[*acct.UID] = true
			}
			if acct.GID != nil {
				inUseGIDs[*acct.GID] = true
			}
			if acct.Username != "" {
				inUseUsernames[acct.Username] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapf("list users for provisioning", err)
	}

	uidStart, err := r.cache.GetAllocatorCursor(ctx, "uid", r.cfg.StartUID)
	if err != nil {
		return nil, wrapf("load uid allocator cursor", err)
	}
	gidStart, err := r.cache.GetAllocatorCursor(ctx, "gid", r.cfg.StartGID)
	if err != nil {
		return nil, wrapf("load gid allocator cursor", err)
	}
	uidCursor := allocate.NewCursor(uidStart)
	gidCursor := allocate.NewCursor(gidStart)

	plan := &Plan{}
	for _, u := range candidates {
		username := allocate.Uniquify(
			allocate.SanitizeUsername(localPart(u.PrimaryEmail), r.cfg.StripSuffix),
			inUseUsernames,
		)
		inUseUsernames[username] = true

		uid := allocate.AllocateID(uidCursor, r.cfg.StartUID, inUseUIDs)

		var gid int64
		if r.cfg.GIDEqualsUID {
			gid = uid
			inUseGIDs[gid] = true
		} else {
			gid = allocate.AllocateID(gidCursor, r.cfg.StartGID, inUseGIDs)
		}

		if r.metrics != nil {
			r.metrics.Allocations.WithLabelValues("username").Inc()
			r.metrics.Allocations.WithLabelValues("uid").Inc()
			r.metrics.Allocations.WithLabelValues("gid").Inc()
		}

		plan.Assignments = append(plan.Assignments, Assignment{
			UserID:   u.ID,
			Email:    u.PrimaryEmail,
			Username: username,
			UID:      uid,
			GID:      gid,
			Home:     r.homeDir(username),
			Shell:    r.cfg.DefaultShell,
			Gecos:    gecosFor(u, username),
		})
	}

	sort.SliceStable(plan.Assignments, func(i, j int) bool {
		return strings.ToLower(plan.Assignments[i].Email) < strings.ToLower(plan.Assignments[j].Email)
	})

	if err := r.cache.SetAllocatorCursor(ctx, "uid", uidCursor.Next()); err != nil {
		return nil, wrapf("persist uid allocator cursor", err)
	}
	if err := r.cache.SetAllocatorCursor(ctx, "gid", gidCursor.Next()); err != nil {
		return nil, wrapf("persist gid allocator cursor", err)
	}

	r.logger.Info("provisioning plan built",
		zap.Int("candidates", len(candidates)),
		zap.Int("assignments", len(plan.Assignments)),
	)
	return plan, nil
}

func gecosFor(u directory.User, username string) string {
	if u.Name != "" {
		return u.Name
	}
	return username
}

// Commit patches every assignment in p through the Directory Client. A
// non-retryable per-entity patch error is logged and skipped, not
// propagated (spec.md §4.4 step 3, §7 "Per-entity upstream"); a transient
// error whose retries are exhausted (directory.ErrTransient) stops the
// commit and is returned with the count applied so far.
func (r *Reconciler) Commit(ctx context.Context, p *Plan) (applied int, err error) {
	for _, a := range p.Assignments {
		acct := directory.PosixAccount{
			Primary:       true,
			Username:      a.Username,
			UID:           &a.UID,
			GID:           &a.GID,
			HomeDirectory: a.Home,
			Shell:         a.Shell,
			Gecos:         a.Gecos,
		}
		if patchErr := r.dir.PatchUserPosix(ctx, a.UserID, acct); patchErr != nil {
			if errors.Is(patchErr, directory.ErrTransient) {
				return applied, wrapf("patch user "+a.UserID, patchErr)
			}
			r.logger.Warn("skipping user after patch failure",
				zap.String("user_id", a.UserID),
				zap.String("email", a.Email),
				zap.Error(patchErr),
			)
			continue
		}
		applied++
	}
	return applied, nil
}
