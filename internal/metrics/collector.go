package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mediacache/mediacache/pkg/types"
)

// Collector gathers the metrics of one run and exports them when it ends.
type Collector struct {
	mu       sync.Mutex
	config   *Config
	registry *prometheus.Registry

	placementCounter *prometheus.CounterVec
	placedBytes      *prometheus.CounterVec
	evictionCounter  *prometheus.CounterVec
	evictedBytes     *prometheus.CounterVec
	failureCounter   *prometheus.CounterVec
	volumeFreeBytes  *prometheus.GaugeVec
	volumeUsedBytes  *prometheus.GaugeVec
	volumeObjects    *prometheus.GaugeVec
	candidates       prometheus.Gauge
	ledgerEntries    prometheus.Gauge
	runDuration      prometheus.Gauge
	lastSuccess      prometheus.Gauge
	runsCounter      *prometheus.CounterVec

	// Internal tracking
	placements int
	evictions  int
	failures   map[string]int
}

// Config represents metrics configuration
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Namespace      string            `yaml:"namespace"`
	Subsystem      string            `yaml:"subsystem"`
	Labels         map[string]string `yaml:"labels"`
	TextfilePath   string            `yaml:"textfile_path"`
	PushgatewayURL string            `yaml:"pushgateway_url"`
	JobName        string            `yaml:"job_name"`
}

// RunSummary carries the end-of-run values exported as gauges.
type RunSummary struct {
	Candidates    int
	LedgerEntries int
	Duration      time.Duration
	Succeeded     bool
	FinishedAt    time.Time
	Volumes       []types.VolumeStats
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "mediacache",
			JobName:   "mediacache",
			Labels:    make(map[string]string),
		}
	}

	collector := &Collector{
		config:   config,
		failures: make(map[string]int),
	}
	if !config.Enabled {
		return collector, nil
	}

	collector.registry = prometheus.NewRegistry()
	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Registry exposes the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordPlacement counts an object copied onto volume.
func (c *Collector) RecordPlacement(volume string, size int64) {
	c.mu.Lock()
	c.placements++
	c.mu.Unlock()

	if !c.config.Enabled {
		return
	}
	c.placementCounter.With(prometheus.Labels{"volume": volume}).Inc()
	c.placedBytes.With(prometheus.Labels{"volume": volume}).Add(float64(size))
}

// RecordEviction counts an object removed from volume.
func (c *Collector) RecordEviction(volume string, size int64) {
	c.mu.Lock()
	c.evictions++
	c.mu.Unlock()

	if !c.config.Enabled {
		return
	}
	c.evictionCounter.With(prometheus.Labels{"volume": volume}).Inc()
	c.evictedBytes.With(prometheus.Labels{"volume": volume}).Add(float64(size))
}

// RecordFailure counts a failed candidate or eviction by error code.
func (c *Collector) RecordFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	c.mu.Lock()
	c.failures[reason]++
	c.mu.Unlock()

	if !c.config.Enabled {
		return
	}
	c.failureCounter.With(prometheus.Labels{"reason": reason}).Inc()
}

// ObserveRun sets the end-of-run gauges.
func (c *Collector) ObserveRun(summary RunSummary) {
	if !c.config.Enabled {
		return
	}

	status := "failure"
	if summary.Succeeded {
		status = "success"
		c.lastSuccess.Set(float64(summary.FinishedAt.Unix()))
	}
	c.runsCounter.With(prometheus.Labels{"status": status}).Inc()
	c.candidates.Set(float64(summary.Candidates))
	c.ledgerEntries.Set(float64(summary.LedgerEntries))
	c.runDuration.Set(summary.Duration.Seconds())

	for _, vs := range summary.Volumes {
		labels := prometheus.Labels{"volume": vs.RootPath}
		if vs.FreeBytes >= 0 {
			c.volumeFreeBytes.With(labels).Set(float64(vs.FreeBytes))
		}
		c.volumeUsedBytes.With(labels).Set(float64(vs.UsedBytes))
		c.volumeObjects.With(labels).Set(float64(vs.Objects))
	}
}

// Export writes the textfile and pushes to the gateway, whichever are configured.
func (c *Collector) Export(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	if c.config.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(c.config.TextfilePath, c.registry); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}

	if c.config.PushgatewayURL != "" {
		pusher := push.New(c.config.PushgatewayURL, c.jobName()).Gatherer(c.registry)
		for name, value := range c.config.Labels {
			pusher = pusher.Grouping(name, value)
		}
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("failed to push metrics: %w", err)
		}
	}

	return nil
}

// Counts returns the placements, evictions and failures recorded so far.
func (c *Collector) Counts() (placements, evictions int, failures map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	failures = make(map[string]int, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}
	return c.placements, c.evictions, failures
}

func (c *Collector) jobName() string {
	if c.config.JobName != "" {
		return c.config.JobName
	}
	return "mediacache"
}

// Helper methods

func (c *Collector) initMetrics() {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	// Placement pass
	c.placementCounter = counter("placements_total", "Objects copied onto a cache volume", "volume")
	c.placedBytes = counter("placed_bytes_total", "Bytes copied onto a cache volume", "volume")
	c.evictionCounter = counter("evictions_total", "Objects evicted from a cache volume", "volume")
	c.evictedBytes = counter("evicted_bytes_total", "Bytes evicted from a cache volume", "volume")
	c.failureCounter = counter("failures_total", "Candidates or evictions that failed, by error code", "reason")
	c.runsCounter = counter("runs_total", "Completed runs by outcome", "status")

	// Volume state after the run
	c.volumeFreeBytes = gaugeVec("volume_free_bytes", "Free bytes on a cache volume", "volume")
	c.volumeUsedBytes = gaugeVec("volume_used_bytes", "Bytes of cached objects on a cache volume", "volume")
	c.volumeObjects = gaugeVec("volume_objects", "Cached objects on a cache volume", "volume")

	// Run
	c.candidates = gauge("candidates", "Objects that met the view threshold and were not cached")
	c.ledgerEntries = gauge("ledger_entries", "Entries in the saved popularity ledger")
	c.runDuration = gauge("run_duration_seconds", "Duration of the last run")
	c.lastSuccess = gauge("last_success_timestamp_seconds", "Unix time of the last successful run")
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.placementCounter,
		c.placedBytes,
		c.evictionCounter,
		c.evictedBytes,
		c.failureCounter,
		c.runsCounter,
		c.volumeFreeBytes,
		c.volumeUsedBytes,
		c.volumeObjects,
		c.candidates,
		c.ledgerEntries,
		c.runDuration,
		c.lastSuccess,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
