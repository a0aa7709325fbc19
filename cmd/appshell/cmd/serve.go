package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/config"
	"github.com/GoCodeAlone/appshell/health"
	"github.com/GoCodeAlone/appshell/logging"
	"github.com/GoCodeAlone/appshell/manifest"
	"github.com/GoCodeAlone/appshell/metrics"
	"github.com/GoCodeAlone/appshell/modules/adminhttp"
	"github.com/GoCodeAlone/appshell/modules/configwatcher"
	"github.com/GoCodeAlone/appshell/modules/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shell with its admin HTTP server",
		Long: `Run the shell. Configuration comes from APPSHELL_* environment variables;
flags override them. Use "appshell serve --help-env" to list the variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpEnv, _ := cmd.Flags().GetBool("help-env"); helpEnv {
				return config.Usage()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("addr", "", "listen address of the admin server")
	f.String("manifest", "", "application manifest (.yaml, .yml, .toml or .json)")
	f.Bool("watch", false, "reload the manifest when it changes")
	f.String("schedule", "", "cron expression for periodic reconciliation")
	f.Bool("start", true, "start the shell right away")
	f.String("log-level", "", "debug, info, warn or error")
	f.Bool("log-dev", false, "human-readable development logging")
	f.String("initial-path", "", "location the shell starts at")
	f.Bool("help-env", false, "list the environment variables and exit")
	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var errs []error
	str := func(name string, dst *string) {
		if f.Changed(name) {
			v, err := f.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if f.Changed(name) {
			v, err := f.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	str("addr", &cfg.Addr)
	str("manifest", &cfg.Manifest)
	boolean("watch", &cfg.Watch)
	str("schedule", &cfg.ReconcileSchedule)
	boolean("start", &cfg.Start)
	str("log-level", &cfg.LogLevel)
	boolean("log-dev", &cfg.LogDev)
	str("initial-path", &cfg.InitialPath)
	return errors.Join(errs...)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDev})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	shell, err := appshell.New(
		appshell.WithLogger(logger.Named("shell")),
		appshell.WithMetrics(collector),
		appshell.WithInitialLocation(cfg.InitialPath),
	)
	if err != nil {
		return err
	}

	catalog := DemoCatalog(logger.Named("demo"))
	applier := manifest.NewApplier(shell, catalog, nil, logger.Named("manifest"))
	if cfg.Manifest != "" {
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return err
		}
		if _, err := applier.Apply(ctx, m); err != nil {
			return err
		}
	}

	agg := health.NewAggregator(nil)
	for _, check := range []health.HealthChecker{appshell.NewAppsChecker(shell), appshell.NewStartedChecker(shell)} {
		if err := agg.RegisterCheck(ctx, check); err != nil {
			return err
		}
	}

	var sched *scheduler.Scheduler
	if cfg.ReconcileSchedule != "" {
		sched, err = scheduler.NewScheduler(shell, cfg.ReconcileSchedule, scheduler.WithLogger(logger.Named("scheduler")))
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	var watcher *configwatcher.Watcher
	if cfg.Watch {
		watcher = configwatcher.New(cfg.Manifest, applier, shell, configwatcher.WithLogger(logger.Named("watcher")))
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	if cfg.Start {
		if _, err := shell.Start(); err != nil {
			return err
		}
	}

	admin := adminhttp.NewServer(shell,
		adminhttp.WithHealth(agg),
		adminhttp.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		adminhttp.WithLogger(logger.Named("http")),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           admin,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Admin server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var failure error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case failure = <-serveErr:
		if failure != nil {
			logger.Error("Admin server failed", "error", failure)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := []error{failure, srv.Shutdown(shutdownCtx)}
	if sched != nil {
		errs = append(errs, sched.Stop(shutdownCtx))
	}
	if watcher != nil {
		errs = append(errs, watcher.Stop())
	}
	errs = append(errs, shell.Close(shutdownCtx))
	if err, ok := <-serveErr; ok {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
