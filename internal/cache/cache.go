// Package cache is the Identity Cache (spec.md §4.3): a durable local
// store of the last-seen mapping from directory identifiers to POSIX
// attributes, the group table, and memberships. It is the source of
// truth the Materialiser renders from.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver — no CGO required. Registers itself
	// as "sqlite" in database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds the configuration required to open the identity cache.
type Config struct {
	// DSN is the sqlite file path (spec.md §6 "db" option).
	DSN      string
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

// Cache wraps the identity cache's *gorm.DB and exposes the operations
// from spec.md §4.3 used by the Reconciler and Materialiser.
type Cache struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the identity cache, applies pending migrations, and
// returns a ready-to-use Cache. SQLite supports only one writer at a
// time (spec.md §4.3 "single-writer"), so the underlying *sql.DB is
// capped at one connection.
func Open(cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("cache: logger is required")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache: dsn is required")
	}

	sqlDB, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// WAL lets a reader (e.g. an operator inspecting the cache) run
	// concurrently with the single writer instead of blocking on it; the
	// busy_timeout covers the narrow window where sqlite itself still
	// returns SQLITE_BUSY under WAL (spec.md §4.3 "single-writer").
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("cache: failed to set pragmas: %w", err)
	}

	gormCfg := &gorm.Config{
		Logger: newZapGORMLogger(cfg.Logger, cfg.LogLevel),
	}

	database, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to initialize gorm: %w", err)
	}

	if err := runMigrations(sqlDB, cfg.Logger); err != nil {
		return nil, fmt.Errorf("cache: migrations failed: %w", err)
	}

	return &Cache{db: database, logger: cfg.Logger.Named("cache")}, nil
}

// Close releases the underlying database connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("cache: failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the cache connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("cache: failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// runMigrations applies all pending up-migrations from the embedded SQL
// files. ErrNoChange is treated as success. Schema migrations are
// additive only (spec.md §6) — older columns are never dropped by any
// migration shipped in this package.
func runMigrations(sqlDB *sql.DB, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	drv, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("identity cache migrations applied successfully")
	return nil
}

// now is overridable in tests; production code always uses time.Now().UTC().
var now = func() time.Time { return time.Now().UTC() }
