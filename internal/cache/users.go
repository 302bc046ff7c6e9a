package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// UserRecord is the normalised, pre-comparison shape the Reconciler hands
// to UpsertUser — the fields spec.md §4.4 step 1 checks for change.
type UserRecord struct {
	ID       string
	Email    string
	Username string
	UID      int64
	GID      int64
	Gecos    string
	Home     string
	Shell    string
	Etag     string
}

// changed reports whether existing differs from r in any field spec.md
// §4.4 tracks, or is not currently active. A nil existing always counts
// as changed (first sighting).
func (r UserRecord) changed(existing *User) bool {
	if existing == nil {
		return true
	}
	return existing.Username != r.Username ||
		existing.Email != r.Email ||
		existing.UID != r.UID ||
		existing.GID != r.GID ||
		existing.Gecos != r.Gecos ||
		existing.Home != r.Home ||
		existing.Shell != r.Shell ||
		existing.Etag != r.Etag ||
		!existing.Active
}

// UpsertUser inserts or updates a user record by ID and marks it active,
// but only issues a write when the record actually differs from the
// cached row (or is new / currently inactive) — otherwise it degrades to
// TouchUserActive. Returns whether a write occurred.
func (c *Cache) UpsertUser(ctx context.Context, r UserRecord) (wrote bool, err error) {
	var existing User
	err = c.db.WithContext(ctx).First(&existing, "id = ?", r.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if uerr := c.insertUser(ctx, r); uerr != nil {
			return false, uerr
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("cache: lookup user %s: %w", r.ID, err)
	}

	if !r.changed(&existing) {
		if terr := c.TouchUserActive(ctx, r.ID); terr != nil {
			return false, terr
		}
		return false, nil
	}

	if uerr := c.insertUser(ctx, r); uerr != nil {
		return false, uerr
	}
	return true, nil
}

func (c *Cache) insertUser(ctx context.Context, r UserRecord) error {
	row := User{
		ID:        r.ID,
		Email:     r.Email,
		Username:  r.Username,
		UID:       r.UID,
		GID:       r.GID,
		Gecos:     r.Gecos,
		Home:      r.Home,
		Shell:     r.Shell,
		Etag:      r.Etag,
		Active:    true,
		UpdatedAt: now(),
	}
	err := c.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("cache: upsert user %s: %w", r.ID, ErrConflict)
		}
		return fmt.Errorf("cache: upsert user %s: %w", r.ID, err)
	}
	return nil
}

// TouchUserActive marks an unchanged user record active and refreshes
// updated_at, without touching any other field (spec.md §4.3
// touch_user_active).
func (c *Cache) TouchUserActive(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": true, "updated_at": now()})
	if res.Error != nil {
		return fmt.Errorf("cache: touch user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cache: touch user %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeactivateMissingUsers sets active=0 on every user whose id is not in
// presentIDs, returning the affected count (spec.md §4.3
// deactivate_missing_users).
func (c *Cache) DeactivateMissingUsers(ctx context.Context, presentIDs []string) (int64, error) {
	q := c.db.WithContext(ctx).Model(&User{}).Where("active = 1")
	if len(presentIDs) > 0 {
		q = q.Where("id NOT IN ?", presentIDs)
	}
	res := q.Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("cache: deactivate missing users: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetActiveUsers returns every active user ordered by (uid, username), the
// order the Materialiser renders passwd/shadow in (spec.md §4.3, §4.5).
func (c *Cache) GetActiveUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.db.WithContext(ctx).
		Where("active = 1").
		Order("uid ASC, username ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("cache: get active users: %w", err)
	}
	return users, nil
}

// isUniqueConstraintErr detects a SQLite unique constraint violation by
// message substring — modernc.org/sqlite does not expose a typed error
// for this, so the driver's own error text is the only signal available.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
