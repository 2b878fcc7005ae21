/*
Package metrics records what a cache fill run did and exports it for
Prometheus.

A run is a short-lived batch process, so there is no scrape endpoint. The
collector accumulates counters while the placement pass runs and, once the
run ends, writes them to a node_exporter textfile, pushes them to a
Pushgateway, or both.

Architecture

	┌───────────────┐  RecordPlacement   ┌─────────────┐
	│   placement   │  RecordEviction    │  Collector  │
	│    Engine     │ ─────────────────► │             │
	└───────────────┘  RecordFailure     │  Prometheus │
	                                     │  Registry   │
	┌───────────────┐  ObserveRun        │             │
	│  cmd (report) │ ─────────────────► │             │
	└───────────────┘                    └──────┬──────┘
	                                            │ Export
	                              ┌─────────────┴─────────────┐
	                              ▼                           ▼
	                    textfile (*.prom)              Pushgateway

# Metrics

All names carry the configured namespace (default "mediacache"):

	placements_total{volume}           objects copied onto a volume
	placed_bytes_total{volume}         bytes copied
	evictions_total{volume}            objects evicted
	evicted_bytes_total{volume}        bytes evicted
	failures_total{reason}             failed candidates and evictions by error code
	runs_total{status}                 runs by outcome
	volume_free_bytes{volume}          free space after the run
	volume_used_bytes{volume}          bytes of cached objects
	volume_objects{volume}             cached objects
	candidates                         objects that met the view threshold
	ledger_entries                     entries in the saved ledger
	run_duration_seconds               last run duration
	last_success_timestamp_seconds     unix time of the last successful run

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:      true,
		Namespace:    "mediacache",
		TextfilePath: "/var/lib/node_exporter/textfile/mediacache.prom",
	})
	if err != nil {
		return err
	}

	// the collector satisfies types.RunRecorder
	report, runErr := orch.Run(ctx)

	collector.ObserveRun(metrics.RunSummary{...})
	if err := collector.Export(ctx); err != nil {
		logger.WithError(err).Warn("Failed to export metrics")
	}

A disabled collector still keeps in-memory counts, available from Counts,
so the CLI summary works without any exporter configured.
*/
package metrics
