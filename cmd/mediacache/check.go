package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/health"
)

// check runs the preflight checks and exits non-zero when a run would fail.
func check(ctx context.Context, cfg *config.Configuration, logger *logrus.Logger, stdout io.Writer) int {
	retryer := newRetryer(cfg)

	origin, err := newOriginStore(ctx, cfg, retryer, logger)
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

	checker := health.NewChecker(0, logger)
	for _, root := range cfg.Placement.VolumePaths {
		checker.Register("volume "+root, true, health.VolumeWritable(root))
	}
	checker.Register("origin", true, health.OriginReachable(origin))
	checker.Register("ledger", true, health.LedgerReadable(store))
	for _, path := range cfg.AccessLog.Paths {
		checker.Register("access log "+path, false, health.FileReadable(path))
	}

	report := checker.Run(ctx)
	for _, c := range report.Components {
		line := fmt.Sprintf("%-12s %s", c.State, c.Name)
		if c.Message != "" {
			line += ": " + c.Message
		}
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintf(stdout, "overall: %s\n", report.Overall())

	if report.Overall() == health.StateUnavailable {
		return exitRunFailed
	}
	return exitOK
}
