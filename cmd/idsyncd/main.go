// Command idsyncd is the thin entrypoint over the identity allocation and
// reconciliation engine (spec.md §1): it wires the Directory Client, the
// Identity Cache, the Reconciler/Provisioner, and the Materialiser
// together and exposes them as a small CLI. The CLI surface itself, key
// loading, and the deployment wrapper are explicitly out of scope for the
// CORE (spec.md §1) — this binary is the minimal runnable shell around it
// (SPEC_FULL.md §1).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fluidnumerics/idsync/internal/cache"
	"github.com/fluidnumerics/idsync/internal/config"
	"github.com/fluidnumerics/idsync/internal/daemon"
	"github.com/fluidnumerics/idsync/internal/directory"
	"github.com/fluidnumerics/idsync/internal/materialize"
	"github.com/fluidnumerics/idsync/internal/reconcile"
	"github.com/fluidnumerics/idsync/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exit codes (spec.md §6 "Exit behaviour", refined per SPEC_FULL.md §6 —
// this specific split into 0/1/2 is this repo's own addition, the
// teacher's own main only refined "non-zero" into a single os.Exit(1)).
const (
	exitOK            = 0
	exitConfigError   = 1
	exitOperationalError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.Defaults()
	root := newRootCmd(&cfg)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		if ce, ok := err.(*cliError); ok {
			fmt.Fprintln(os.Stderr, ce.err)
			return ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	return exitOK
}

// cliError carries an explicit exit code through cobra's error path.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "idsyncd",
		Short: "Bridge a cloud identity directory into a host's extrausers database",
		Long: `idsyncd provisions POSIX attributes for cloud-managed users and
materialises the directory into a host's extrausers passwd/group/shadow
files, so cloud-managed humans can log in with their cloud-assigned
POSIX identity.`,
	}

	bindFlags(root, cfg)

	root.AddCommand(newSyncCmd(cfg))
	root.AddCommand(newProvisionCmd(cfg))
	root.AddCommand(newDaemonCmd(cfg))
	root.AddCommand(newVersionCmd())

	return root
}

// bindFlags registers every spec.md §6 configuration option as a
// persistent flag, falling back to an IDSYNC_*-prefixed environment
// variable, the same envOrDefault idiom the teacher's own cmd/server uses.
func bindFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.PersistentFlags()
	f.StringVar(&cfg.Customer, "customer", envOrDefault("IDSYNC_CUSTOMER", cfg.Customer), "Customer ID to enumerate (ignored if --domain is set)")
	f.StringVar(&cfg.Domain, "domain", envOrDefault("IDSYNC_DOMAIN", cfg.Domain), "Domain to enumerate; takes precedence over --customer")
	f.Int64Var(&cfg.StartUID, "start-uid", envOrDefaultInt64("IDSYNC_START_UID", cfg.StartUID), "Lower bound for provisioned user UIDs")
	f.Int64Var(&cfg.StartGID, "start-gid", envOrDefaultInt64("IDSYNC_START_GID", cfg.StartGID), "Lower bound for provisioned user primary GIDs when independent")
	f.BoolVar(&cfg.GIDEqualsUID, "gid-equals-uid", envOrDefaultBool("IDSYNC_GID_EQUALS_UID", cfg.GIDEqualsUID), "Use the allocated UID as the primary GID")
	f.StringVar(&cfg.DefaultShell, "default-shell", envOrDefault("IDSYNC_DEFAULT_SHELL", cfg.DefaultShell), "Fallback shell for users without one")
	f.StringVar(&cfg.HomeTemplate, "home-template", envOrDefault("IDSYNC_HOME_TEMPLATE", cfg.HomeTemplate), "Fallback home directory template, {username} substituted")
	f.StringVar(&cfg.StripSuffix, "strip-suffix", envOrDefault("IDSYNC_STRIP_SUFFIX", cfg.StripSuffix), "Override the default _<tld>_com username suffix stripper")
	f.Float64Var(&cfg.RPS, "rps", envOrDefaultFloat("IDSYNC_RPS", cfg.RPS), "Directory API pacing ceiling, requests per second")
	f.IntVar(&cfg.MaxRetries, "max-retries", envOrDefaultInt("IDSYNC_MAX_RETRIES", cfg.MaxRetries), "Backoff attempt budget for transient Directory API errors")
	f.BoolVar(&cfg.GroupSync, "group-sync", envOrDefaultBool("IDSYNC_GROUP_SYNC", cfg.GroupSync), "Materialise directory groups into the group file")
	f.Int64Var(&cfg.GroupStartGID, "group-start-gid", envOrDefaultInt64("IDSYNC_GROUP_START_GID", cfg.GroupStartGID), "Lower bound of the directory-group GID range")
	f.Int64Var(&cfg.GroupEndGID, "group-end-gid", envOrDefaultInt64("IDSYNC_GROUP_END_GID", cfg.GroupEndGID), "Upper bound of the directory-group GID range")
	f.StringVar(&cfg.Outdir, "outdir", envOrDefault("IDSYNC_OUTDIR", cfg.Outdir), "Destination directory for rendered extrausers files")
	f.StringVar(&cfg.DB, "db", envOrDefault("IDSYNC_DB", cfg.DB), "Identity cache sqlite file path")
	f.BoolVar(&cfg.DryRun, "dry-run", envOrDefaultBool("IDSYNC_DRY_RUN", cfg.DryRun), "Print the plan / would-be files instead of committing")
	f.StringVar(&cfg.CredentialsFile, "credentials-file", envOrDefault("IDSYNC_CREDENTIALS_FILE", cfg.CredentialsFile), "Path to the delegated service-account JSON key")
	f.StringVar(&cfg.ImpersonateUser, "impersonate-user", envOrDefault("IDSYNC_IMPERSONATE_USER", cfg.ImpersonateUser), "Admin user the service identity impersonates (domain-wide delegation subject)")
	f.StringVar(&cfg.SyncCron, "sync-cron", envOrDefault("IDSYNC_SYNC_CRON", cfg.SyncCron), "Cron expression for the daemon's sync pass")
	f.StringVar(&cfg.ProvisionCron, "provision-cron", envOrDefault("IDSYNC_PROVISION_CRON", cfg.ProvisionCron), "Cron expression for the daemon's provision pass")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", envOrDefault("IDSYNC_METRICS_ADDR", cfg.MetricsAddr), "Listen address for the Prometheus /metrics endpoint (empty disables it)")
	f.StringVar(&cfg.LogLevel, "log-level", envOrDefault("IDSYNC_LOG_LEVEL", cfg.LogLevel), "Log level (debug, info, warn, error)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("idsyncd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newSyncCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Snapshot the directory into the host's extrausers database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cfg, func(ctx context.Context, d *deps) error {
				r := reconcile.New(d.dir, d.cache, reconcileConfig(*cfg), d.logger).WithMetrics(d.metrics)
				if err := r.Run(ctx); err != nil {
					return &cliError{code: exitOperationalError, err: fmt.Errorf("sync: %w", err)}
				}
				m := materialize.New(d.cache, cfg.Outdir, d.logger).WithMetrics(d.metrics)
				if cfg.DryRun {
					preview, err := m.Preview(ctx)
					if err != nil {
						return &cliError{code: exitOperationalError, err: fmt.Errorf("sync: %w", err)}
					}
					printPreview(preview)
					return nil
				}
				result, err := m.Render(ctx)
				if err != nil {
					return &cliError{code: exitOperationalError, err: fmt.Errorf("sync: %w", err)}
				}
				d.logger.Info("sync complete", zap.Bool("files_written", result.Written))
				return nil
			})
		},
	}
}

func newProvisionCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Plan and apply POSIX attribute assignments for users that lack one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cfg, func(ctx context.Context, d *deps) error {
				r := reconcile.New(d.dir, d.cache, reconcileConfig(*cfg), d.logger).WithMetrics(d.metrics)
				plan, err := r.Plan(ctx)
				if err != nil {
					return &cliError{code: exitOperationalError, err: fmt.Errorf("provision: %w", err)}
				}
				printPlan(plan)
				if cfg.DryRun {
					d.logger.Info("dry run: not committing plan")
					return nil
				}
				applied, err := r.Commit(ctx, plan)
				if err != nil {
					return &cliError{code: exitOperationalError, err: fmt.Errorf("provision: %w", err)}
				}
				d.logger.Info("provisioning applied", zap.Int("applied", applied), zap.Int("planned", len(plan.Assignments)))
				return nil
			})
		},
	}
}

func newDaemonCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run sync and provision passes on an internal schedule instead of exiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cfg, func(ctx context.Context, d *deps) error {
				r := reconcile.New(d.dir, d.cache, reconcileConfig(*cfg), d.logger).WithMetrics(d.metrics)
				m := materialize.New(d.cache, cfg.Outdir, d.logger).WithMetrics(d.metrics)

				dm, err := daemon.New(d.logger)
				if err != nil {
					return &cliError{code: exitOperationalError, err: err}
				}

				syncPass := daemon.RunnerFunc(func(ctx context.Context) error {
					if err := r.Run(ctx); err != nil {
						return err
					}
					_, err := m.Render(ctx)
					return err
				})
				provisionPass := daemon.RunnerFunc(func(ctx context.Context) error {
					plan, err := r.Plan(ctx)
					if err != nil {
						return err
					}
					_, err = r.Commit(ctx, plan)
					return err
				})

				if err := dm.AddPass("sync", cfg.SyncCron, syncPass); err != nil {
					return &cliError{code: exitConfigError, err: err}
				}
				if err := dm.AddPass("provision", cfg.ProvisionCron, provisionPass); err != nil {
					return &cliError{code: exitConfigError, err: err}
				}

				dm.Start()
				defer func() { _ = dm.Stop() }()

				<-ctx.Done()
				d.logger.Info("daemon shutting down")
				return nil
			})
		},
	}
}

// printPreview prints the would-be extrausers files for --dry-run, the
// Go-native equivalent of the original sync script's
// "# ---- PASSWD ----" / "# ---- GROUP ----" / "# ---- SHADOW ----" blocks.
func printPreview(p materialize.Preview) {
	fmt.Println("# ---- PASSWD ----")
	fmt.Print(p.Passwd)
	fmt.Println("# ---- GROUP ----")
	fmt.Print(p.Group)
	fmt.Println("# ---- SHADOW ----")
	fmt.Print(p.Shadow)
}

func printPlan(plan *reconcile.Plan) {
	fmt.Print(plan.String())
}

// deps bundles every constructed dependency a subcommand needs, so
// withDeps is the single place that wires credentials, the directory
// client, the cache, and metrics together and guarantees cleanup.
type deps struct {
	logger  *zap.Logger
	cache   *cache.Cache
	dir     *directory.Client
	metrics *telemetry.Metrics
}

func withDeps(cfg *config.Config, fn func(ctx context.Context, d *deps) error) error {
	if err := cfg.Validate(); err != nil {
		return &cliError{code: exitConfigError, err: err}
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return &cliError{code: exitConfigError, err: fmt.Errorf("build logger: %w", err)}
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server error", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	store, err := cache.Open(cache.Config{DSN: cfg.DB, Logger: logger})
	if err != nil {
		return &cliError{code: exitOperationalError, err: fmt.Errorf("open identity cache: %w", err)}
	}
	defer store.Close()

	if cfg.CredentialsFile == "" {
		return &cliError{code: exitConfigError, err: fmt.Errorf("--credentials-file is required")}
	}
	src := directory.NewFileCredentialSource(cfg.CredentialsFile)
	ts, err := directory.NewTokenSource(ctx, src, cfg.ImpersonateUser)
	if err != nil {
		return &cliError{code: exitConfigError, err: fmt.Errorf("build credential: %w", err)}
	}
	svc, err := directory.NewService(ctx, ts)
	if err != nil {
		return &cliError{code: exitOperationalError, err: fmt.Errorf("build directory service: %w", err)}
	}
	dirClient := directory.New(svc, directory.Config{
		Logger:     logger,
		RPS:        cfg.RPS,
		MaxRetries: cfg.MaxRetries,
		Metrics:    metrics,
	})

	return fn(ctx, &deps{logger: logger, cache: store, dir: dirClient, metrics: metrics})
}

func reconcileConfig(cfg config.Config) reconcile.Config {
	return reconcile.Config{
		Scope:        cfg.Scope(),
		DefaultShell: cfg.DefaultShell,
		HomeTemplate: cfg.HomeTemplate,
		StripSuffix:  cfg.StripSuffix,
		GroupSync:    cfg.GroupSync,
		GroupGIDs:    cfg.GroupGIDRange(),
		StartUID:     cfg.StartUID,
		StartGID:     cfg.StartGID,
		GIDEqualsUID: cfg.GIDEqualsUID,
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var zcfg zap.Config
	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zcfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func envOrDefaultInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

func envOrDefaultInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n float64
	if _, err := fmt.Sscanf(v, "%f", &n); err != nil {
		return defaultVal
	}
	return n
}
