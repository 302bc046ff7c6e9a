package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// MetaGet retrieves a single meta value by key, such as
// "last_snapshot_hash" (spec.md §3, §4.5). It returns ErrNotFound if the
// key has never been set.
func (c *Cache) MetaGet(ctx context.Context, key string) (string, error) {
	var m Meta
	err := c.db.WithContext(ctx).First(&m, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("cache: get meta %s: %w", key, err)
	}
	return m.Value, nil
}

// MetaSet upserts a meta value, overwriting value and updated_at on
// conflict. This avoids a read-before-write on every save.
func (c *Cache) MetaSet(ctx context.Context, key, value string) error {
	m := Meta{Key: key, Value: value, UpdatedAt: now()}
	if err := c.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("cache: set meta %s: %w", key, err)
	}
	return nil
}
