package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"agent-remediator/internal/adminapi"
	"agent-remediator/internal/api"
	"agent-remediator/internal/config"
	"agent-remediator/internal/monitor"
	"agent-remediator/internal/record"
	"agent-remediator/internal/remediate"
	"agent-remediator/internal/state"
	"agent-remediator/internal/storage"
)

var (
	configPath      string
	siteCode        string
	managementPoint string
	installerPath   string
	setupArgs       string
	uninstallFirst  bool
	forceInstall    bool
)

func main() {
	_ = godotenv.Load()

	// Structured logging goes to stderr; stdout belongs to the record.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	root := &cobra.Command{
		Use:   "remediator",
		Short: "Validates and repairs the management agent's installation on this endpoint",
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Validate the agent and remediate if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRemediation(cmd.Context(), false)
		},
	}
	addRunFlags(runCmd)
	root.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the agent and report without remediating",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRemediation(cmd.Context(), true)
		},
	}
	addRunFlags(checkCmd)
	root.AddCommand(checkCmd)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Expose remediation over HTTP for an orchestration layer",
		RunE:  runServe,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&siteCode, "site-code", "", "Expected site code (required)")
	cmd.Flags().StringVar(&managementPoint, "management-point", "", "Management point the agent reports to (required)")
	cmd.Flags().StringVar(&installerPath, "installer-path", "", "Remote (network) path of the installer binary (required)")
	cmd.Flags().StringVar(&setupArgs, "setup-args", "", "Installer arguments (default embeds management point and site code)")
	cmd.Flags().BoolVar(&uninstallFirst, "uninstall-first", false, "Uninstall the existing agent before installing")
	cmd.Flags().BoolVar(&forceInstall, "force-install", false, "Reinstall even when the current state passes validation")
	_ = cmd.MarkFlagRequired("site-code")
	_ = cmd.MarkFlagRequired("management-point")
	_ = cmd.MarkFlagRequired("installer-path")
}

func loadConfig() *config.Config {
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
		return cfg
	}

	log.Info().Msg("no config file found, using defaults")
	return config.DefaultConfig()
}

// newRunner builds the per-run workflow closure. The installer is
// constructed per run because a successful uninstall redirects its
// active path.
func newRunner(cfg *config.Config, metrics *monitor.Metrics, tracer *monitor.Tracer) api.RunnerFunc {
	return func(ctx context.Context, p remediate.Params) *record.ExecutionRecord {
		wf := &remediate.Workflow{
			Store:       state.NewFileStore(cfg.Agent.ConfigPath),
			Services:    state.NewSystemdManager(),
			Admin:       adminapi.NewHTTPClient(cfg.AdminAPI.BaseURL, cfg.AdminAPI.APIKey, cfg.AdminAPI.Timeout),
			Installer:   remediate.NewInstaller(p.RemoteInstallerPath, cfg.Installer.LocalPath, cfg.Installer.UninstallArgs),
			ServiceName: cfg.Agent.ServiceName,
			Domain:      cfg.Agent.Domain,
			Metrics:     metrics,
			Tracer:      tracer,
		}
		return wf.Run(ctx, p)
	}
}

func runRemediation(ctx context.Context, checkOnly bool) error {
	cfg := loadConfig()

	params := remediate.Params{
		ExpectedSiteCode:    state.NewSiteCode(siteCode),
		ManagementPoint:     managementPoint,
		RemoteInstallerPath: installerPath,
		SetupArgs:           setupArgs,
		UninstallFirst:      uninstallFirst,
		ForceInstall:        forceInstall,
		CheckOnly:           checkOnly,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	var tracer *monitor.Tracer
	if cfg.Tracing.Enabled {
		tracer = monitor.NewTracer()
	}

	rec := newRunner(cfg, nil, tracer)(ctx, params)

	// Audit to Postgres when configured; a CLI run writes synchronously.
	if cfg.Database.DSN != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if db, err := storage.New(dbCtx, cfg.Database.DSN); err != nil {
			log.Warn().Err(err).Msg("database unavailable, run not audited")
		} else {
			defer db.Close()
			if err := db.InsertRun(dbCtx, storage.FromRecord(rec)); err != nil {
				log.Warn().Err(err).Msg("audit insert failed")
			}
		}
	}

	if err := rec.Emit(os.Stdout); err != nil {
		return err
	}

	// 0 when the endpoint ended healthy, 2 when remediation was
	// attempted and failed. The record stays the source of truth.
	if !checkOnly && !rec.PassedOrFalse() && !rec.Remediated {
		os.Exit(2)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	metrics := monitor.NewMetrics()

	var tracer *monitor.Tracer
	if cfg.Tracing.Enabled {
		tracer = monitor.NewTracer()
	}

	// Database is optional; serve runs without it for development.
	var db *storage.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		} else {
			defer db.Close()
		}
	}

	var writer *storage.RunWriter
	if db != nil {
		writer = storage.NewRunWriter(db, 1000)
		writer.Start()
		defer writer.Flush(10 * time.Second)
	}

	server := api.NewServer(cfg, newRunner(cfg, metrics, tracer), db, writer, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
	return nil
}
