// Command mediacache fills cache volumes with the most requested objects
// from the origin, evicting the least popular cached objects when space runs
// out. It is meant to run periodically from cron or a systemd timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/internal/accesslog"
	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/inventory"
	"github.com/mediacache/mediacache/internal/metrics"
	"github.com/mediacache/mediacache/internal/orchestrator"
	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Exit codes
const (
	exitOK             = 0
	exitRunFailed      = 1
	exitBadConfig      = 2
	exitAlreadyRunning = 3
)

type options struct {
	configPath string
	check      bool
	dryRun     bool
	logLevel   string
	minViews   int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitBadConfig
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "mediacache: %v\n", err)
		return exitBadConfig
	}

	logger, logCloser, err := utils.NewLogger(utils.LogConfig{
		Level:  cfg.Global.LogLevel,
		Format: cfg.Global.LogFormat,
		File:   cfg.Global.LogFile,
	})
	if err != nil {
		fmt.Fprintf(stderr, "mediacache: %v\n", err)
		return exitBadConfig
	}
	defer logCloser.Close()

	if opts.check {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return check(ctx, cfg, logger, stdout)
	}

	if cfg.Global.LockFile != "" {
		release, err := acquireLock(cfg.Global.LockFile)
		if err != nil {
			logger.WithError(err).Error("Cannot start")
			if errors.HasCode(err, errors.ErrCodeAlreadyRunning) {
				return exitAlreadyRunning
			}
			return exitRunFailed
		}
		defer release()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, cfg, logger, stdout)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("mediacache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file")
	fs.BoolVar(&opts.check, "check", false, "check volumes, origin, ledger and access logs, then exit")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "plan placements and evictions without changing volumes or the ledger")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	fs.IntVar(&opts.minViews, "min-views", 0, "override min_views_for_caching")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: mediacache [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "mediacache: unexpected arguments: %v\n", fs.Args())
		return nil, fmt.Errorf("unexpected arguments")
	}
	return opts, nil
}

// loadConfig applies defaults, then the file, then the environment, then flags.
func loadConfig(opts *options) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if opts.configPath != "" {
		if err := cfg.LoadFromFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if opts.dryRun {
		cfg.Placement.DryRun = true
	}
	if opts.logLevel != "" {
		cfg.Global.LogLevel = opts.logLevel
	}
	if opts.minViews != 0 {
		cfg.Placement.MinViewsForCaching = opts.minViews
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func execute(ctx context.Context, cfg *config.Configuration, logger *logrus.Logger, stdout io.Writer) int {
	retryer := newRetryer(cfg)

	origin, err := newOrigin(ctx, cfg, retryer, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open origin")
		return exitBadConfig
	}

	store, closeStore, err := newLedgerStore(cfg, retryer)
	if err != nil {
		logger.WithError(err).Error("Failed to open ledger")
		return exitBadConfig
	}
	defer closeStore()

	reserve, err := cfg.VolumeReserveBytes()
	if err != nil {
		logger.WithError(err).Error("Invalid volume reserve")
		return exitBadConfig
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:        cfg.Monitoring.TextfilePath != "" || cfg.Monitoring.PushgatewayURL != "",
		Namespace:      "mediacache",
		Labels:         cfg.Monitoring.CustomLabels,
		TextfilePath:   cfg.Monitoring.TextfilePath,
		PushgatewayURL: cfg.Monitoring.PushgatewayURL,
		JobName:        cfg.Monitoring.JobName,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to set up metrics")
		return exitRunFailed
	}

	feed := accesslog.Open(cfg.AccessLog.Paths, cfg.AccessLog.Statuses, logger)
	defer feed.Close()

	orch, err := orchestrator.New(orchestrator.Config{
		MinViews: cfg.Placement.MinViewsForCaching,
		Order:    cfg.Placement.CandidateOrder,
		DryRun:   cfg.Placement.DryRun,
	}, orchestrator.Dependencies{
		Volumes:  inventory.NewVolumes(cfg.Placement.VolumePaths, reserve, nil),
		Feed:     feed,
		Origin:   origin,
		Ledger:   store,
		Recorder: collector,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to set up run")
		return exitBadConfig
	}

	report, runErr := orch.Run(ctx)

	collector.ObserveRun(metrics.RunSummary{
		Candidates:    report.Candidates,
		LedgerEntries: report.LedgerEntries,
		Duration:      report.Duration,
		Succeeded:     runErr == nil,
		FinishedAt:    time.Now(),
		Volumes:       report.Volumes,
	})
	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := collector.Export(exportCtx); err != nil {
		logger.WithError(err).Warn("Failed to export metrics")
	}

	printSummary(stdout, report)

	if runErr != nil {
		return exitRunFailed
	}
	return exitOK
}

func printSummary(w io.Writer, report *orchestrator.Report) {
	mode := ""
	if report.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "run %s%s\n", report.RunID, mode)
	fmt.Fprintf(w, "  top objects:    %d (%d already cached)\n", report.TopObjects, report.Reconciled)
	fmt.Fprintf(w, "  placed:         %d (%s)\n", len(report.Placed), utils.FormatBytes(report.PlacedBytes))
	fmt.Fprintf(w, "  evicted:        %d (%s)\n", len(report.Evicted), utils.FormatBytes(report.EvictedBytes))
	fmt.Fprintf(w, "  failed:         %d\n", len(report.Failed))
	fmt.Fprintf(w, "  remaining:      %d\n", report.Remaining())
	for _, f := range report.Failed {
		fmt.Fprintf(w, "    %s: %s\n", f.Path, errors.CodeOf(f.Err))
	}
	for _, vs := range report.Volumes {
		free := "unknown"
		if vs.FreeBytes >= 0 {
			free = utils.FormatBytes(vs.FreeBytes)
		}
		fmt.Fprintf(w, "  %-20s %6d objects  %10s used  %10s free\n",
			vs.RootPath, vs.Objects, utils.FormatBytes(vs.UsedBytes), free)
	}
}
