package cache

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GroupRecord is the input shape for ReplaceGroups — one directory group
// with its freshly (re)computed GID.
type GroupRecord struct {
	GroupID string
	Email   string
	Name    string
	GID     int64
	Etag    string
}

// ReplaceGroups idempotently re-projects the full group table (spec.md
// §4.3 replace_groups): every provided group is inserted or updated and
// marked active; any group whose group_id is not provided is marked
// inactive. GIDs may move between runs (spec.md §3 "Lifecycles" — GIDs
// are recomputed from scratch each run), which would transiently violate
// the active-GID uniqueness constraint if applied directly, so every
// active group's GID is first staged to a negative sentinel derived from
// its row's rowid before the real GIDs are written (spec.md §4.3, §9
// "Group-GID reassignment windowing").
func (c *Cache) ReplaceGroups(ctx context.Context, groups []GroupRecord) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Stage: push every currently-active GID to a unique negative
		// sentinel so the upserts below never collide with a GID that is
		// about to move to a different group.
		if err := tx.Exec(`UPDATE groups SET gid = -1 * (rowid + 1000000000) WHERE active = 1`).Error; err != nil {
			return fmt.Errorf("cache: stage group gids: %w", err)
		}

		present := make([]string, 0, len(groups))
		for _, g := range groups {
			present = append(present, g.GroupID)
			row := Group{
				GroupID:   g.GroupID,
				Email:     g.Email,
				Name:      g.Name,
				GID:       g.GID,
				Etag:      g.Etag,
				Active:    true,
				UpdatedAt: now(),
			}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("cache: upsert group %s: %w", g.GroupID, err)
			}
		}

		q := tx.Model(&Group{}).Where("active = 1")
		if len(present) > 0 {
			q = q.Where("group_id NOT IN ?", present)
		}
		if err := q.Update("active", false).Error; err != nil {
			return fmt.Errorf("cache: deactivate missing groups: %w", err)
		}

		if len(present) > 0 {
			if err := tx.Where("group_id NOT IN ?", present).Delete(&GroupMember{}).Error; err != nil {
				return fmt.Errorf("cache: purge memberships of deactivated groups: %w", err)
			}
		} else {
			if err := tx.Where("1 = 1").Delete(&GroupMember{}).Error; err != nil {
				return fmt.Errorf("cache: purge all memberships: %w", err)
			}
		}

		return nil
	})
}

// GetActiveGroups returns every active group ordered by gid ascending,
// the order the Materialiser renders the group file's directory-group
// section in (spec.md §4.5).
func (c *Cache) GetActiveGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	err := c.db.WithContext(ctx).
		Where("active = 1").
		Order("gid ASC, name ASC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("cache: get active groups: %w", err)
	}
	return groups, nil
}
