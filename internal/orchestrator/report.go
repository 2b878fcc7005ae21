package orchestrator

import (
	"time"

	"github.com/mediacache/mediacache/internal/ledger"
	"github.com/mediacache/mediacache/internal/placement"
	"github.com/mediacache/mediacache/internal/popularity"
	"github.com/mediacache/mediacache/pkg/types"
)

// Report summarises one run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dry_run"`
	Succeeded bool          `json:"succeeded"`

	Feed       popularity.Stats  `json:"feed"`
	TopObjects int               `json:"top_objects"`
	Reconciled int               `json:"reconciled"`
	Ledger     ledger.MergeStats `json:"ledger"`
	Candidates int               `json:"candidates"`

	Placed       []placement.Placement `json:"placed"`
	Evicted      []placement.Eviction  `json:"evicted"`
	Failed       []placement.Failure   `json:"failed"`
	PlacedBytes  int64                 `json:"placed_bytes"`
	EvictedBytes int64                 `json:"evicted_bytes"`

	LedgerEntries int                 `json:"ledger_entries"`
	Volumes       []types.VolumeStats `json:"volumes"`
}

// Remaining counts objects that met the threshold but are still not cached.
func (r *Report) Remaining() int {
	return r.TopObjects - r.Reconciled - len(r.Placed)
}

// CachedObjects counts objects on the volumes after the run.
func (r *Report) CachedObjects() int {
	total := 0
	for _, vs := range r.Volumes {
		total += vs.Objects
	}
	return total
}

func (r *Report) absorb(result *placement.Result) {
	if result == nil {
		return
	}
	r.Placed = append(r.Placed, result.Placed...)
	r.Evicted = append(r.Evicted, result.Evicted...)
	r.Failed = append(r.Failed, result.Failed...)
	r.PlacedBytes += result.PlacedBytes()
	r.EvictedBytes += result.EvictedBytes()
}
