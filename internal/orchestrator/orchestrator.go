package orchestrator

import (
	"context"
	stderr "errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/internal/inventory"
	"github.com/mediacache/mediacache/internal/ledger"
	"github.com/mediacache/mediacache/internal/placement"
	"github.com/mediacache/mediacache/internal/popularity"
	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Config holds the per-run settings.
type Config struct {
	MinViews int
	Order    string
	DryRun   bool
}

// Dependencies are the collaborators a run is wired to.
type Dependencies struct {
	Volumes []*inventory.Volume
	// Feed may be nil when no access log is available.
	Feed     types.EventFeed
	Origin   types.OriginStore
	Ledger   types.LedgerStore
	Mover    placement.Mover
	Recorder types.RunRecorder
	Logger   logrus.FieldLogger
}

// Orchestrator runs one scan, rank, place and persist cycle.
type Orchestrator struct {
	config Config
	deps   Dependencies
	logger *logrus.Entry
	now    func() time.Time
	newID  func() string
}

// New creates an orchestrator.
func New(config Config, deps Dependencies) (*Orchestrator, error) {
	if config.MinViews < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "minimum views must be at least 1, got %d", config.MinViews).
			WithComponent("orchestrator")
	}
	if len(deps.Volumes) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "at least one cache volume is required").
			WithComponent("orchestrator")
	}
	if deps.Origin == nil || deps.Ledger == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "origin and ledger stores are required").
			WithComponent("orchestrator")
	}
	if deps.Mover == nil {
		deps.Mover = placement.NewFSMover(deps.Origin)
	}
	return &Orchestrator{
		config: config,
		deps:   deps,
		logger: utils.WithComponent(deps.Logger, "orchestrator"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Run executes a full cycle and returns its report. Per-candidate failures
// are collected in the report; the error is non-nil only when the run had to
// stop: the inventory or ledger could not be read, an eviction would have
// touched the origin, the ledger could not be saved, or ctx was canceled.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     o.newID(),
		StartedAt: o.now(),
		DryRun:    o.config.DryRun,
	}
	log := o.logger.WithField("run_id", report.RunID)
	defer func() { report.Duration = o.now().Sub(report.StartedAt) }()

	log.WithFields(logrus.Fields{
		"volumes":   len(o.deps.Volumes),
		"min_views": o.config.MinViews,
		"dry_run":   o.config.DryRun,
	}).Info("Starting cache fill run")

	inv, err := inventory.Scan(ctx, o.deps.Volumes, log)
	if err != nil {
		return report, o.fatal(err, report, "scan")
	}
	o.logVolumes(log, inv)

	top, feedStats, err := popularity.ComputeTodaysTop(o.deps.Feed, o.config.MinViews, log)
	if err != nil {
		return report, o.fatal(err, report, "rank")
	}
	report.Feed = feedStats
	report.TopObjects = len(top)

	pending := o.reconcile(inv, top, report)

	store := o.deps.Ledger
	if o.config.DryRun {
		store = readOnlyStore{store}
	}
	led := ledger.New(store, log)
	views, err := led.Load(ctx, inv)
	if err != nil {
		return report, o.fatal(err, report, "ledger-load")
	}
	report.Ledger = led.Merge(inv, views)

	candidates := o.resolve(ctx, inv, pending, report, log)
	if err := ctx.Err(); err != nil {
		return report, o.fatal(errors.Wrap(err, errors.ErrCodeOperationCanceled, "run interrupted while resolving candidates"), report, "resolve")
	}
	report.Candidates = len(candidates)

	engine := placement.NewEngine(inv, o.deps.Mover, placement.Options{
		DryRun:   o.config.DryRun,
		Order:    o.config.Order,
		Recorder: o.deps.Recorder,
		Logger:   log,
	})
	result, placeErr := engine.Place(ctx, candidates)
	report.absorb(result)

	if errors.IsFatal(placeErr) {
		return report, o.fatal(placeErr, report, "place")
	}

	if o.config.DryRun {
		log.Info("Dry run: ledger left unchanged")
	} else {
		// The inventory reflects every completed copy and delete, so the ledger
		// is saved even when the pass was interrupted.
		entries, err := led.Save(context.WithoutCancel(ctx), inv)
		if err != nil {
			return report, o.fatal(err, report, "ledger-save")
		}
		report.LedgerEntries = entries
	}
	report.Volumes = inv.Stats()

	if placeErr != nil {
		return report, o.fatal(placeErr, report, "place")
	}

	report.Succeeded = true
	o.logSummary(log, report)
	return report, nil
}

// reconcile folds today's views into objects already cached and returns
// the remaining tallies, still in feed order.
func (o *Orchestrator) reconcile(inv *inventory.Inventory, top []popularity.Tally, report *Report) []popularity.Tally {
	pending := make([]popularity.Tally, 0, len(top))
	for _, t := range top {
		if obj, ok := inv.Get(t.Path); ok && obj.IsCached() {
			obj.AddViews(int64(t.Views))
			report.Reconciled++
			continue
		}
		pending = append(pending, t)
	}
	return pending
}

// resolve turns tallies into origin-backed objects registered in the
// inventory. Paths that are invalid or missing on the origin are reported
// as failures.
func (o *Orchestrator) resolve(ctx context.Context, inv *inventory.Inventory, pending []popularity.Tally, report *Report, log *logrus.Entry) []*types.MediaObject {
	candidates := make([]*types.MediaObject, 0, len(pending))
	for _, t := range pending {
		if ctx.Err() != nil {
			return candidates
		}
		entry := log.WithFields(logrus.Fields{"path": t.Path, "views": t.Views})

		if err := utils.ValidateRelativePath(t.Path); err != nil {
			o.resolveFailure(report, entry, t.Path, errors.Wrap(err, errors.ErrCodePathInvalid, "requested path is not a valid object path").
				WithComponent("orchestrator").WithDetail("path", t.Path))
			continue
		}
		info, err := o.deps.Origin.Stat(ctx, t.Path)
		if err != nil {
			if ctx.Err() != nil {
				return candidates
			}
			o.resolveFailure(report, entry, t.Path, err)
			continue
		}

		obj := &types.MediaObject{
			RelativePath:    t.Path,
			SizeBytes:       info.Size,
			CumulativeViews: int64(t.Views),
			Location:        types.OriginLocation,
		}
		inv.Put(obj)
		candidates = append(candidates, obj)
	}
	return candidates
}

func (o *Orchestrator) resolveFailure(report *Report, log *logrus.Entry, path string, err error) {
	log.WithError(err).Warn("Skipping candidate")
	report.Failed = append(report.Failed, placement.Failure{Path: path, Err: err})
	if o.deps.Recorder != nil {
		o.deps.Recorder.RecordFailure(string(errors.CodeOf(err)))
	}
}

func (o *Orchestrator) fatal(err error, report *Report, stage string) error {
	var cacheErr *errors.CacheError
	if !stderr.As(err, &cacheErr) {
		cacheErr = errors.Wrap(err, errors.ErrCodeOperationFailed, "run failed")
	}
	cacheErr = cacheErr.WithRunID(report.RunID)
	if cacheErr.Operation == "" {
		cacheErr = cacheErr.WithOperation(stage)
	}
	o.logger.WithFields(logrus.Fields{
		"run_id":       report.RunID,
		"stage":        stage,
		"error_detail": cacheErr.JSON(),
	}).WithError(cacheErr).Error("Run aborted")
	return cacheErr
}

func (o *Orchestrator) logVolumes(log *logrus.Entry, inv *inventory.Inventory) {
	total := 0
	for _, vs := range inv.Stats() {
		total += vs.Objects
		log.WithFields(logrus.Fields{
			"volume":  vs.RootPath,
			"objects": vs.Objects,
			"used":    utils.FormatBytes(vs.UsedBytes),
			"free":    utils.FormatBytes(vs.FreeBytes),
		}).Info("Volume inventory")
	}
	log.WithField("objects", total).Info("Objects on cache volumes")
}

func (o *Orchestrator) logSummary(log *logrus.Entry, report *Report) {
	log.WithFields(logrus.Fields{
		"top":            report.TopObjects,
		"already_cached": report.Reconciled,
		"candidates":     report.Candidates,
		"placed":         len(report.Placed),
		"evicted":        len(report.Evicted),
		"failed":         len(report.Failed),
		"remaining":      report.Remaining(),
		"placed_bytes":   utils.FormatBytes(report.PlacedBytes),
		"evicted_bytes":  utils.FormatBytes(report.EvictedBytes),
		"ledger_entries": report.LedgerEntries,
		"duration":       o.now().Sub(report.StartedAt).Round(time.Millisecond),
	}).Info("Cache fill run complete")
}

// readOnlyStore drops writes so a dry run leaves the persisted ledger untouched.
type readOnlyStore struct {
	types.LedgerStore
}

func (readOnlyStore) Write(context.Context, map[string]int64) error {
	return nil
}
