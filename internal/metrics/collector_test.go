package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mediacache/mediacache/pkg/types"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{
			Enabled:   true,
			Namespace: "mediacache",
			Subsystem: "test",
		}
		collector, err := NewCollector(config)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.Registry() == nil {
			t.Error("collector.registry is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "mediacache" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "mediacache")
		}
		if collector.jobName() != "mediacache" {
			t.Errorf("default job = %q, want %q", collector.jobName(), "mediacache")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}
	})
}

func TestRecordPlacementsAndEvictions(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(&Config{Enabled: true, Namespace: "mediacache"})
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordPlacement("/cache/top", 100)
	collector.RecordPlacement("/cache/top", 50)
	collector.RecordPlacement("/cache2/top", 10)
	collector.RecordEviction("/cache/top", 70)

	if got := testutil.ToFloat64(collector.placementCounter.WithLabelValues("/cache/top")); got != 2 {
		t.Errorf("placements on /cache/top = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.placedBytes.WithLabelValues("/cache/top")); got != 150 {
		t.Errorf("placed bytes on /cache/top = %v, want 150", got)
	}
	if got := testutil.ToFloat64(collector.evictedBytes.WithLabelValues("/cache/top")); got != 70 {
		t.Errorf("evicted bytes = %v, want 70", got)
	}

	placements, evictions, _ := collector.Counts()
	if placements != 3 || evictions != 1 {
		t.Errorf("Counts() = %d, %d, want 3, 1", placements, evictions)
	}
}

func TestRecordFailure(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordFailure("CAPACITY_EXHAUSTED")
	collector.RecordFailure("CAPACITY_EXHAUSTED")
	collector.RecordFailure("")

	if got := testutil.ToFloat64(collector.failureCounter.WithLabelValues("CAPACITY_EXHAUSTED")); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
	_, _, failures := collector.Counts()
	if failures["unknown"] != 1 {
		t.Errorf("empty reason should count as unknown, got %v", failures)
	}
}

func TestDisabledCollectorStillCounts(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordPlacement("/cache/top", 1)
	collector.RecordEviction("/cache/top", 1)
	collector.RecordFailure("COPY_FAILED")
	collector.ObserveRun(RunSummary{Succeeded: true})
	if err := collector.Export(context.Background()); err != nil {
		t.Errorf("Export() on disabled collector = %v, want nil", err)
	}

	placements, evictions, failures := collector.Counts()
	if placements != 1 || evictions != 1 || failures["COPY_FAILED"] != 1 {
		t.Errorf("Counts() = %d, %d, %v", placements, evictions, failures)
	}
}

func TestObserveRun(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}

	finished := time.Unix(1700000000, 0)
	collector.ObserveRun(RunSummary{
		Candidates:    4,
		LedgerEntries: 12,
		Duration:      1500 * time.Millisecond,
		Succeeded:     true,
		FinishedAt:    finished,
		Volumes: []types.VolumeStats{
			{RootPath: "/cache/top", Objects: 7, UsedBytes: 700, FreeBytes: 300},
			{RootPath: "/cache2/top", Objects: 1, UsedBytes: 10, FreeBytes: -1},
		},
	})

	checks := map[string]float64{
		"candidates":     testutil.ToFloat64(collector.candidates),
		"ledger_entries": testutil.ToFloat64(collector.ledgerEntries),
		"run_duration":   testutil.ToFloat64(collector.runDuration),
		"last_success":   testutil.ToFloat64(collector.lastSuccess),
		"volume_objects": testutil.ToFloat64(collector.volumeObjects.WithLabelValues("/cache/top")),
		"volume_free":    testutil.ToFloat64(collector.volumeFreeBytes.WithLabelValues("/cache/top")),
		"runs_success":   testutil.ToFloat64(collector.runsCounter.WithLabelValues("success")),
	}
	want := map[string]float64{
		"candidates":     4,
		"ledger_entries": 12,
		"run_duration":   1.5,
		"last_success":   1700000000,
		"volume_objects": 7,
		"volume_free":    300,
		"runs_success":   1,
	}
	for name, got := range checks {
		if got != want[name] {
			t.Errorf("%s = %v, want %v", name, got, want[name])
		}
	}

	// an unknown free size is not exported
	if n := testutil.CollectAndCount(collector.volumeFreeBytes); n != 1 {
		t.Errorf("volume_free_bytes series = %d, want 1", n)
	}
}

func TestObserveFailedRunKeepsLastSuccess(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatal(err)
	}
	collector.ObserveRun(RunSummary{Succeeded: false, FinishedAt: time.Now()})

	if got := testutil.ToFloat64(collector.lastSuccess); got != 0 {
		t.Errorf("last success = %v, want 0", got)
	}
	if got := testutil.ToFloat64(collector.runsCounter.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
}

func TestExportTextfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mediacache.prom")
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "mediacache", TextfilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	collector.RecordPlacement("/cache/top", 42)

	if err := collector.Export(context.Background()); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `mediacache_placements_total{volume="/cache/top"} 1`) {
		t.Errorf("textfile missing placement counter:\n%s", data)
	}
}

func TestExportPushgateway(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector, err := NewCollector(&Config{
		Enabled:        true,
		Namespace:      "mediacache",
		PushgatewayURL: server.URL,
		JobName:        "cache-fill",
		Labels:         map[string]string{"host": "edge1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	collector.RecordEviction("/cache/top", 5)

	if err := collector.Export(context.Background()); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/metrics/job/cache-fill/host/edge1" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestExportPushgatewayError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	collector, err := NewCollector(&Config{Enabled: true, Namespace: "mediacache", PushgatewayURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if err := collector.Export(context.Background()); err == nil {
		t.Error("Export() error = nil, want push failure")
	}
}
