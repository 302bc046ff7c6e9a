// Package config is the configuration surface (spec.md §6): every option
// in that table as a Go struct field, with the specified defaults,
// regardless of whether it arrives via flag, environment variable, or a
// serverless trigger payload decoded into the same struct.
package config

import (
	"fmt"

	"github.com/fluidnumerics/idsync/internal/allocate"
	"github.com/fluidnumerics/idsync/internal/directory"
)

// Config is the full set of options spec.md §6 names, plus the additive
// daemon-mode and metrics options SPEC_FULL.md §9 supplements.
type Config struct {
	// Scope resolution (spec.md §4.1 "Scope resolution").
	Customer string
	Domain   string

	StartUID     int64
	StartGID     int64
	GIDEqualsUID bool

	DefaultShell string
	HomeTemplate string
	StripSuffix  string

	RPS        float64
	MaxRetries int

	GroupSync    bool
	GroupStartGID int64
	GroupEndGID   int64

	Outdir string
	DB     string

	DryRun bool

	// Credentials (spec.md §6 "Identity provider API").
	CredentialsFile string
	ImpersonateUser string

	// Daemon mode (SPEC_FULL.md §9 supplemented feature).
	Daemon       bool
	SyncCron     string
	ProvisionCron string

	// Metrics (SPEC_FULL.md §6 addition).
	MetricsAddr string

	LogLevel string
}

// Defaults returns a Config populated with every default spec.md §6
// lists, ready to have flags/env overrides applied on top.
func Defaults() Config {
	return Config{
		Customer:      "my_customer",
		StartUID:      20000,
		StartGID:      20000,
		GIDEqualsUID:  true,
		DefaultShell:  "/bin/bash",
		HomeTemplate:  "/home/{username}",
		RPS:           5.0,
		MaxRetries:    5,
		GroupSync:     false,
		GroupStartGID: 30000,
		GroupEndGID:   39999,
		Outdir:        "/var/lib/extrausers",
		DB:            "/var/lib/googleworkspace-idcache/users.db",
		SyncCron:      "*/15 * * * *",
		ProvisionCron: "0 * * * *",
		MetricsAddr:   "",
		LogLevel:      "info",
	}
}

// Validate reports a configuration error if the surface is unusable —
// exactly one of Customer/Domain resolution still applies at the
// directory-client layer (spec.md §4.1), but a few invariants are cheap
// to check here before any network call is attempted.
func (c Config) Validate() error {
	if c.RPS <= 0 {
		return fmt.Errorf("config: rps must be positive, got %v", c.RPS)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("config: max_retries must be positive, got %d", c.MaxRetries)
	}
	if c.GroupSync && c.GroupStartGID >= c.GroupEndGID {
		return fmt.Errorf("config: group_start_gid must be < group_end_gid")
	}
	if c.Outdir == "" {
		return fmt.Errorf("config: outdir must be set")
	}
	if c.DB == "" {
		return fmt.Errorf("config: db must be set")
	}
	return nil
}

// Scope builds the directory.Scope spec.md §4.1 resolves from Customer/Domain.
func (c Config) Scope() directory.Scope {
	return directory.Scope{Domain: c.Domain, Customer: c.Customer}
}

// GroupGIDRange builds the allocate.GIDRange directory-group GIDs are
// drawn from (spec.md §4.2).
func (c Config) GroupGIDRange() allocate.GIDRange {
	return allocate.GIDRange{Start: c.GroupStartGID, End: c.GroupEndGID}
}
