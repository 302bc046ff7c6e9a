package cache

import "time"

// User is the cached POSIX attribute record for one directory user,
// keyed by the directory-stable identifier (spec.md §3). It is never
// deleted, only deactivated, so historical UID assignments remain visible
// for audit and reallocation avoidance.
type User struct {
	ID        string `gorm:"column:id;type:text;primaryKey"`
	Email     string `gorm:"column:email;not null"`
	Username  string `gorm:"column:username;not null;uniqueIndex:idx_users_username_active,where:active=1"`
	UID       int64  `gorm:"column:uid;not null;uniqueIndex:idx_users_uid_active,where:active=1"`
	GID       int64  `gorm:"column:gid;not null"`
	Gecos     string `gorm:"column:gecos;not null"`
	Home      string `gorm:"column:home;not null"`
	Shell     string `gorm:"column:shell;not null"`
	Etag      string `gorm:"column:etag"`
	Active    bool   `gorm:"column:active;not null;default:true"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (User) TableName() string { return "users" }

// Group is the cached record for one directory group, keyed by the
// directory-stable group identifier. GIDs are recomputed from scratch on
// every group sync (spec.md §3 "Lifecycles"), so a prior assignment here
// is advisory until the next reconcile pass overwrites it.
type Group struct {
	GroupID   string `gorm:"column:group_id;type:text;primaryKey"`
	Email     string `gorm:"column:email;not null"`
	Name      string `gorm:"column:name;not null"`
	GID       int64  `gorm:"column:gid;not null;uniqueIndex:idx_groups_gid_active,where:active=1"`
	Etag      string `gorm:"column:etag"`
	Active    bool   `gorm:"column:active;not null;default:true"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Group) TableName() string { return "groups" }

// GroupMember is one row of the many-to-many membership between a Group
// and a User's username. Rows are replaced wholesale per group
// (delete-then-insert, spec.md §4.3 replace_memberships) rather than
// diffed individually.
type GroupMember struct {
	GroupID  string `gorm:"column:group_id;type:text;primaryKey"`
	Username string `gorm:"column:username;type:text;primaryKey"`
}

func (GroupMember) TableName() string { return "group_members" }

// Meta is a generic string key-value row, used at minimum for
// "last_snapshot_hash" (spec.md §3, §4.5).
type Meta struct {
	Key       string    `gorm:"column:key;type:text;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Meta) TableName() string { return "meta" }

// AllocatorCursor persists the forward-allocation pointer for UID or GID
// assignment across provisioning runs (SPEC_FULL.md §3 — the "allocators"
// table spec.md §6 names but never re-describes in prose). Kind is either
// "uid" or "gid".
type AllocatorCursor struct {
	Kind      string    `gorm:"column:kind;type:text;primaryKey"`
	Next      int64     `gorm:"column:next;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (AllocatorCursor) TableName() string { return "allocator_cursors" }
