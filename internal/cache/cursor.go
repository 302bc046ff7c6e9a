package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GetAllocatorCursor returns the forward-allocation pointer for kind ("uid"
// or "gid"), or fallback if no cursor has been persisted yet (SPEC_FULL.md
// §3 — the provisioning cursor table spec.md §6 names but never
// re-describes in prose).
func (c *Cache) GetAllocatorCursor(ctx context.Context, kind string, fallback int64) (int64, error) {
	var row AllocatorCursor
	err := c.db.WithContext(ctx).First(&row, "kind = ?", kind).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fallback, nil
	case err != nil:
		return 0, fmt.Errorf("cache: get allocator cursor %s: %w", kind, err)
	}
	return row.Next, nil
}

// SetAllocatorCursor persists the next value to hand out for kind, so the
// Allocator resumes forward from where the prior run left off rather than
// rescanning from the configured start value.
func (c *Cache) SetAllocatorCursor(ctx context.Context, kind string, next int64) error {
	row := AllocatorCursor{Kind: kind, Next: next, UpdatedAt: now()}
	if err := c.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("cache: set allocator cursor %s: %w", kind, err)
	}
	return nil
}
