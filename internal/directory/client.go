package directory

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	admin "google.golang.org/api/admin/directory/v1"

	"github.com/fluidnumerics/idsync/internal/telemetry"
)

const pageSize = 200

// Config holds the configuration required to build a Client.
type Config struct {
	Logger     *zap.Logger
	RPS        float64
	MaxRetries int
	// Metrics is optional; when nil, requests and retries go unrecorded.
	Metrics *telemetry.Metrics
}

// Client is the Directory Client (spec.md §4.1). Every method paces
// itself against a shared rate.Limiter and retries transient failures
// with exponential backoff; callers never see a 429/5xx directly.
type Client struct {
	svc        *admin.Service
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	metrics    *telemetry.Metrics
}

// New wraps an already-authenticated Admin SDK Directory service.
func New(svc *admin.Service, cfg Config) *Client {
	if cfg.RPS <= 0 {
		cfg.RPS = 5.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Client{
		svc:        svc,
		logger:     cfg.Logger.Named("directory"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		maxRetries: cfg.MaxRetries,
		metrics:    cfg.Metrics,
	}
}

// pace blocks until the pacing budget allows another request, then adds up
// to 50ms of uniform jitter on top (spec.md §4.1 "the pause before each
// request is 1/rps plus up to 50ms of uniform jitter").
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("directory: rate limiter: %w", err)
	}
	jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry runs op, retrying transient failures per spec.md §4.1 until
// maxRetries is exhausted, at which point the last error propagates. op
// itself is responsible for calling c.pace before issuing its request.
func (c *Client) withRetry(ctx context.Context, opName string, op func() error) error {
	if c.metrics != nil {
		c.metrics.DirectoryRequests.WithLabelValues(opName).Inc()
	}
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == c.maxRetries-1 {
			break
		}
		if c.metrics != nil {
			c.metrics.DirectoryRetries.Inc()
		}
		wait := backoff(attempt)
		c.logger.Warn("retrying transient directory error",
			zap.String("op", opName),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("directory: %s: %w: %v", opName, ErrTransient, lastErr)
}

// ListUsers yields every user in scope, ordered by email, paged at 200
// entries per page (spec.md §4.1 list_users).
func (c *Client) ListUsers(ctx context.Context, scope Scope, fn func(User) error) error {
	domain, customer := scope.domainOrCustomer()

	call := c.svc.Users.List().
		MaxResults(pageSize).
		OrderBy("email").
		Projection("full")
	if domain != "" {
		call = call.Domain(domain)
	} else {
		call = call.Customer(customer)
	}

	return c.withRetry(ctx, "list_users", func() error {
		return call.Pages(ctx, func(page *admin.Users) error {
			if err := c.pace(ctx); err != nil {
				return err
			}
			for _, u := range page.Users {
				if err := fn(normalizeUser(u)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ListGroups yields every group in scope (spec.md §4.1 list_groups).
func (c *Client) ListGroups(ctx context.Context, scope Scope, fn func(Group) error) error {
	domain, customer := scope.domainOrCustomer()

	call := c.svc.Groups.List().MaxResults(pageSize)
	if domain != "" {
		call = call.Domain(domain)
	} else {
		call = call.Customer(customer)
	}

	return c.withRetry(ctx, "list_groups", func() error {
		return call.Pages(ctx, func(page *admin.Groups) error {
			if err := c.pace(ctx); err != nil {
				return err
			}
			for _, g := range page.Groups {
				if err := fn(Group{ID: g.Id, Email: g.Email, Name: g.Name, Etag: g.Etag}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ListGroupMembers yields (email, type, status) for groupEmail. A 404
// (the group vanished between list and member fetch) yields no members
// rather than an error (spec.md §4.1).
func (c *Client) ListGroupMembers(ctx context.Context, groupEmail string, fn func(Member) error) error {
	call := c.svc.Members.List(groupEmail).MaxResults(pageSize)

	err := c.withRetry(ctx, "list_group_members", func() error {
		return call.Pages(ctx, func(page *admin.Members) error {
			if err := c.pace(ctx); err != nil {
				return err
			}
			for _, m := range page.Members {
				if err := fn(Member{Email: m.Email, Type: m.Type, Status: m.Status}); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// PatchUserPosix replaces userID's posixAccounts with a singleton list
// containing acct (primary=true), per spec.md §4.1 patch_user_posix.
func (c *Client) PatchUserPosix(ctx context.Context, userID string, acct PosixAccount) error {
	acct.Primary = true
	patch := &admin.User{
		PosixAccounts: []admin.UserPosixAccount{toAPIPosixAccount(acct)},
	}

	err := c.withRetry(ctx, "patch_user_posix", func() error {
		if err := c.pace(ctx); err != nil {
			return err
		}
		_, err := c.svc.Users.Patch(userID, patch).Context(ctx).Do()
		return err
	})
	if err != nil && isNotFound(err) {
		return fmt.Errorf("directory: patch_user_posix %s: %w", userID, ErrVanished)
	}
	return err
}

func normalizeUser(u *admin.User) User {
	out := User{
		ID:           u.Id,
		PrimaryEmail: u.PrimaryEmail,
		Suspended:    u.Suspended,
		Deleted:      u.Deleted,
		Etag:         u.Etag,
	}
	if u.Name != nil {
		out.Name = u.Name.FullName
	}
	for _, a := range u.PosixAccounts {
		out.PosixAccounts = append(out.PosixAccounts, fromAPIPosixAccount(a))
	}
	return out
}

func fromAPIPosixAccount(a admin.UserPosixAccount) PosixAccount {
	acct := PosixAccount{
		Primary:       a.Primary,
		Username:      a.Username,
		HomeDirectory: a.HomeDirectory,
		Shell:         a.Shell,
		Gecos:         a.Gecos,
	}
	if a.Uid > 0 {
		uid := int64(a.Uid)
		acct.UID = &uid
	}
	if a.Gid > 0 {
		gid := int64(a.Gid)
		acct.GID = &gid
	}
	return acct
}

func toAPIPosixAccount(a PosixAccount) admin.UserPosixAccount {
	out := admin.UserPosixAccount{
		Primary:       a.Primary,
		Username:      a.Username,
		HomeDirectory: a.HomeDirectory,
		Shell:         a.Shell,
		Gecos:         a.Gecos,
	}
	if a.UID != nil {
		out.Uid = uint64(*a.UID)
	}
	if a.GID != nil {
		out.Gid = uint64(*a.GID)
	}
	return out
}
