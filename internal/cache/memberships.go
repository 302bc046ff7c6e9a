package cache

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ReplaceMemberships replaces every membership row for groupID with
// usernames wholesale (spec.md §4.3 replace_memberships) — members are not
// diffed individually, the set is simply deleted and reinserted.
func (c *Cache) ReplaceMemberships(ctx context.Context, groupID string, usernames []string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&GroupMember{}).Error; err != nil {
			return fmt.Errorf("cache: clear memberships for group %s: %w", groupID, err)
		}
		if len(usernames) == 0 {
			return nil
		}
		rows := make([]GroupMember, 0, len(usernames))
		seen := make(map[string]bool, len(usernames))
		for _, u := range usernames {
			if seen[u] {
				continue
			}
			seen[u] = true
			rows = append(rows, GroupMember{GroupID: groupID, Username: u})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("cache: insert memberships for group %s: %w", groupID, err)
		}
		return nil
	})
}

// GetMembersFor returns the usernames belonging to groupID, ordered
// lexicographically — the order the Materialiser renders a group's member
// list in (spec.md §4.5).
func (c *Cache) GetMembersFor(ctx context.Context, groupID string) ([]string, error) {
	var rows []GroupMember
	err := c.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("username ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("cache: get members for group %s: %w", groupID, err)
	}
	usernames := make([]string, len(rows))
	for i, r := range rows {
		usernames[i] = r.Username
	}
	return usernames, nil
}
