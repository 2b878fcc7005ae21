package placement

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/internal/inventory"
	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Candidate orderings.
const (
	OrderInput      = "input"
	OrderPopularity = "popularity"
)

// Options configures an Engine.
type Options struct {
	// DryRun plans placements and evictions without touching any volume.
	DryRun bool
	// Order is OrderInput (default) or OrderPopularity.
	Order    string
	Recorder types.RunRecorder
	Logger   logrus.FieldLogger
}

// Engine runs one greedy first-fit placement pass with eviction on pressure.
type Engine struct {
	inv      *inventory.Inventory
	mover    Mover
	recorder types.RunRecorder
	logger   *logrus.Entry
	dryRun   bool
	order    string

	// pending holds bytes committed per volume during a dry run.
	pending map[int]int64
}

// NewEngine returns an engine mutating inv through mover.
func NewEngine(inv *inventory.Inventory, mover Mover, opts Options) *Engine {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	order := opts.Order
	if order == "" {
		order = OrderInput
	}
	return &Engine{
		inv:      inv,
		mover:    mover,
		recorder: recorder,
		logger:   utils.WithComponent(opts.Logger, "placement").WithField("dry_run", opts.DryRun),
		dryRun:   opts.DryRun,
		order:    order,
		pending:  make(map[int]int64),
	}
}

// Place processes candidates one at a time. Each candidate is either copied
// to the first volume with room, copied after evicting the least popular
// cached objects, or reported as failed. The returned error is non-nil only
// for conditions that must abort the run: an eviction that would touch the
// origin, or cancellation. The result is valid in both cases.
func (e *Engine) Place(ctx context.Context, candidates []*types.MediaObject) (*Result, error) {
	result := &Result{}
	pool := newEvictionPool(e.inv.Cached())

	e.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"evictable":  pool.Len(),
	}).Info("Starting placement pass")

	for _, cand := range e.ordered(candidates) {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, errors.ErrCodeOperationCanceled, "placement pass interrupted").
				WithComponent("placement")
		}
		if cand.IsCached() {
			e.logger.WithField("path", cand.RelativePath).Debug("Candidate already cached")
			continue
		}
		if err := e.placeOne(ctx, cand, pool, result); err != nil {
			return result, err
		}
	}

	e.logger.WithFields(logrus.Fields{
		"placed":  len(result.Placed),
		"evicted": len(result.Evicted),
		"failed":  len(result.Failed),
	}).Info("Placement pass complete")
	return result, nil
}

func (e *Engine) placeOne(ctx context.Context, cand *types.MediaObject, pool *evictionPool, result *Result) error {
	log := e.logger.WithFields(logrus.Fields{
		"path":  cand.RelativePath,
		"size":  cand.SizeBytes,
		"views": cand.CumulativeViews,
	})

	checkedReach := false
	for {
		vol, err := e.firstFit(cand.SizeBytes)
		if err != nil {
			e.fail(result, cand, err, log)
			return nil
		}
		if vol != nil {
			if err := e.copy(ctx, cand, vol, log); err != nil {
				if errors.HasCode(err, errors.ErrCodeOperationCanceled) {
					return err
				}
				e.fail(result, cand, err, log)
				return nil
			}
			result.Placed = append(result.Placed, Placement{
				Path:   cand.RelativePath,
				Volume: vol.RootPath,
				Size:   cand.SizeBytes,
				Views:  cand.CumulativeViews,
			})
			return nil
		}

		if pool.Len() == 0 {
			e.fail(result, cand, errors.NewError(errors.ErrCodeCapacityExhausted,
				"no volume has room and nothing is left to evict").
				WithComponent("placement").
				WithDetail("path", cand.RelativePath).
				WithDetail("size", cand.SizeBytes), log)
			return nil
		}

		if !checkedReach {
			reachable, err := e.reachable(cand.SizeBytes, pool)
			if err != nil {
				e.fail(result, cand, err, log)
				return nil
			}
			if !reachable {
				e.fail(result, cand, errors.NewError(errors.ErrCodeCapacityExhausted,
					"object does not fit on any volume even after evicting every cached object").
					WithComponent("placement").
					WithDetail("path", cand.RelativePath).
					WithDetail("size", cand.SizeBytes), log)
				return nil
			}
			checkedReach = true
		}

		victim := pool.Pop()
		if err := e.evict(ctx, victim, result); err != nil {
			if errors.IsFatal(err) || errors.HasCode(err, errors.ErrCodeOperationCanceled) {
				return err
			}
			// The file is still on disk; it stays cached but leaves the pool.
			e.logger.WithError(err).WithField("path", victim.RelativePath).Error("Eviction failed")
			result.Failed = append(result.Failed, Failure{Path: victim.RelativePath, Size: victim.SizeBytes, Err: err})
			e.recorder.RecordFailure(string(errors.CodeOf(err)))
		}
	}
}

// firstFit returns the first volume, in priority order, whose free space
// strictly exceeds size, or nil when none does.
func (e *Engine) firstFit(size int64) (*inventory.Volume, error) {
	for _, vol := range e.inv.Volumes() {
		free, err := e.freeSpace(vol)
		if err != nil {
			return nil, err
		}
		if free > size {
			return vol, nil
		}
	}
	return nil, nil
}

// reachable reports whether some volume would fit size once every pool
// object on it is gone.
func (e *Engine) reachable(size int64, pool *evictionPool) (bool, error) {
	freed := pool.BytesByVolume()
	for _, vol := range e.inv.Volumes() {
		free, err := e.freeSpace(vol)
		if err != nil {
			return false, err
		}
		if free+freed[vol.Index] > size {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) freeSpace(vol *inventory.Volume) (int64, error) {
	free, err := vol.FreeSpace()
	if err != nil {
		return 0, err
	}
	return free - e.pending[vol.Index], nil
}

func (e *Engine) copy(ctx context.Context, cand *types.MediaObject, vol *inventory.Volume, log *logrus.Entry) error {
	if e.dryRun {
		e.pending[vol.Index] += cand.SizeBytes
	} else {
		written, err := e.mover.Copy(ctx, cand.RelativePath, vol.RootPath)
		if err != nil {
			return err
		}
		if written != cand.SizeBytes {
			log.WithField("written", written).Warn("Origin size changed since stat")
			cand.SizeBytes = written
		}
	}

	cand.Location = vol.Location()
	e.inv.Put(cand)
	e.recorder.RecordPlacement(vol.RootPath, cand.SizeBytes)
	log.WithField("volume", vol.RootPath).Info("Placed object")
	return nil
}

func (e *Engine) evict(ctx context.Context, victim *types.MediaObject, result *Result) error {
	vol := e.inv.Volume(victim.Location)
	if vol == nil {
		return errors.NewError(errors.ErrCodeOriginProtected, "refusing to evict an object that is not on a cache volume").
			WithComponent("placement").
			WithOperation("evict").
			WithDetail("path", victim.RelativePath).
			WithDetail("location", victim.Location.String()).
			WithStack()
	}

	if e.dryRun {
		e.pending[vol.Index] -= victim.SizeBytes
	} else if err := e.mover.Remove(ctx, victim.RelativePath, vol.RootPath); err != nil {
		return err
	}

	e.inv.Remove(victim.RelativePath)
	victim.Location = types.OriginLocation
	result.Evicted = append(result.Evicted, Eviction{
		Path:   victim.RelativePath,
		Volume: vol.RootPath,
		Size:   victim.SizeBytes,
		Views:  victim.CumulativeViews,
	})
	e.recorder.RecordEviction(vol.RootPath, victim.SizeBytes)
	e.logger.WithFields(logrus.Fields{
		"path":   victim.RelativePath,
		"volume": vol.RootPath,
		"size":   victim.SizeBytes,
		"views":  victim.CumulativeViews,
	}).Info("Evicted object")
	return nil
}

func (e *Engine) fail(result *Result, cand *types.MediaObject, err error, log *logrus.Entry) {
	log.WithError(err).Error("Failed to place object")
	result.Failed = append(result.Failed, Failure{Path: cand.RelativePath, Size: cand.SizeBytes, Err: err})
	e.recorder.RecordFailure(string(errors.CodeOf(err)))
}

func (e *Engine) ordered(candidates []*types.MediaObject) []*types.MediaObject {
	if e.order != OrderPopularity {
		return candidates
	}
	out := make([]*types.MediaObject, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CumulativeViews > out[j].CumulativeViews
	})
	return out
}

// evictionPool holds the objects cached before the pass, least popular first.
type evictionPool struct {
	objects []*types.MediaObject
}

func newEvictionPool(cached []*types.MediaObject) *evictionPool {
	objects := make([]*types.MediaObject, len(cached))
	copy(objects, cached)
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].CumulativeViews != objects[j].CumulativeViews {
			return objects[i].CumulativeViews < objects[j].CumulativeViews
		}
		return objects[i].RelativePath < objects[j].RelativePath
	})
	return &evictionPool{objects: objects}
}

func (p *evictionPool) Len() int {
	return len(p.objects)
}

func (p *evictionPool) Pop() *types.MediaObject {
	obj := p.objects[0]
	p.objects = p.objects[1:]
	return obj
}

func (p *evictionPool) BytesByVolume() map[int]int64 {
	out := make(map[int]int64)
	for _, obj := range p.objects {
		if idx, ok := obj.Location.Volume(); ok {
			out[idx] += obj.SizeBytes
		}
	}
	return out
}

type nopRecorder struct{}

func (nopRecorder) RecordPlacement(string, int64) {}
func (nopRecorder) RecordEviction(string, int64)  {}
func (nopRecorder) RecordFailure(string)          {}
