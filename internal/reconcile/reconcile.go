// Package reconcile drives the Reconciler (spec.md §4.4): a full snapshot
// pass that fetches users and groups from the Directory Client, normalises
// and diffs them against the Identity Cache, and deactivates anything no
// longer present upstream. It also exposes the provisioning variant that
// plans and applies POSIX attribute assignments for users that lack one.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fluidnumerics/idsync/internal/allocate"
	"github.com/fluidnumerics/idsync/internal/cache"
	"github.com/fluidnumerics/idsync/internal/directory"
	"github.com/fluidnumerics/idsync/internal/telemetry"
)

// Config configures a Reconciler's normalisation and group-sync behaviour
// (spec.md §6).
type Config struct {
	Scope        directory.Scope
	DefaultShell string
	HomeTemplate string
	StripSuffix  string
	GroupSync    bool
	GroupGIDs    allocate.GIDRange

	// Provisioning-only fields (spec.md §6).
	StartUID     int64
	StartGID     int64
	GIDEqualsUID bool
}

// DirectoryClient is the subset of *directory.Client the Reconciler
// depends on, narrowed to an interface so tests can substitute a fake
// directory without a live Google Workspace credential.
type DirectoryClient interface {
	ListUsers(ctx context.Context, scope directory.Scope, fn func(directory.User) error) error
	ListGroups(ctx context.Context, scope directory.Scope, fn func(directory.Group) error) error
	ListGroupMembers(ctx context.Context, groupEmail string, fn func(directory.Member) error) error
	PatchUserPosix(ctx context.Context, userID string, acct directory.PosixAccount) error
}

// Reconciler wires the Directory Client, the Identity Cache, and the
// Allocator together to drive the full sync pass and the provisioning
// pass. The zero value is not usable — create instances with New.
type Reconciler struct {
	dir     DirectoryClient
	cache   *cache.Cache
	logger  *zap.Logger
	cfg     Config
	metrics *telemetry.Metrics
}

// WithMetrics attaches a telemetry.Metrics to r, so sync duration and
// allocation counts are recorded (SPEC_FULL.md §6). Optional — a
// Reconciler with no attached metrics still functions, it just records
// nothing.
func (r *Reconciler) WithMetrics(m *telemetry.Metrics) *Reconciler {
	r.metrics = m
	return r
}

// New creates a Reconciler over dir and store.
func New(dir DirectoryClient, store *cache.Cache, cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.DefaultShell == "" {
		cfg.DefaultShell = "/bin/bash"
	}
	if cfg.HomeTemplate == "" {
		cfg.HomeTemplate = "/home/{username}"
	}
	return &Reconciler{
		dir:    dir,
		cache:  store,
		logger: logger.Named("reconcile"),
		cfg:    cfg,
	}
}

func (r *Reconciler) homeDir(username string) string {
	return strings.ReplaceAll(r.cfg.HomeTemplate, "{username}", username)
}

func localPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at]
}

func wrapf(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("reconcile: %s: %w", op, err)
}
