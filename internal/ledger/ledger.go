package ledger

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Ledger reads, merges and rewrites the persisted cumulative view counts of
// cached objects.
type Ledger struct {
	store  types.LedgerStore
	logger *logrus.Entry
}

// New returns a ledger persisted through store.
func New(store types.LedgerStore, logger logrus.FieldLogger) *Ledger {
	return &Ledger{
		store:  store,
		logger: utils.WithComponent(logger, "ledger"),
	}
}

// MergeStats counts what Merge did with the loaded entries.
type MergeStats struct {
	Applied int
	Stale   int
	Invalid int
}

// Load returns the persisted view counts. When nothing has been persisted
// yet, every known cached object gets zero views and that mapping is written
// before Load returns.
func (l *Ledger) Load(ctx context.Context, known types.ObjectSet) (map[string]int64, error) {
	views, found, err := l.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		l.logger.WithField("entries", len(views)).Info("Loaded popularity ledger")
		return views, nil
	}

	views = make(map[string]int64)
	for _, obj := range known.Cached() {
		views[obj.RelativePath] = 0
	}
	if err := l.store.Write(ctx, views); err != nil {
		return nil, err
	}
	l.logger.WithField("entries", len(views)).Info("No popularity ledger found; bootstrapped with zero views")
	return views, nil
}

// Merge adds each ledger entry's views to the matching object. Entries for
// paths the inventory does not know are dropped with a warning; no object is
// ever created from the ledger alone.
func (l *Ledger) Merge(objects types.ObjectSet, views map[string]int64) MergeStats {
	var stats MergeStats
	for path, n := range views {
		if n < 0 {
			stats.Invalid++
			l.logger.WithFields(logrus.Fields{"path": path, "views": n}).
				Warn("Ignoring negative view count in ledger")
			continue
		}
		obj, ok := objects.Get(path)
		if !ok || !obj.IsCached() {
			stats.Stale++
			l.logger.WithField("path", path).
				Warn("Ledger entry has no object on any cache volume; the previous run may not have finished, or the file was removed outside mediacache")
			continue
		}
		obj.AddViews(n)
		stats.Applied++
	}
	return stats
}

// Snapshot builds the replacement mapping from every cache-resident object.
func Snapshot(objects types.ObjectSet) map[string]int64 {
	cached := objects.Cached()
	views := make(map[string]int64, len(cached))
	for _, obj := range cached {
		views[obj.RelativePath] = obj.CumulativeViews
	}
	return views
}

// Save fully replaces the persisted ledger with the cached objects' views.
// Origin-resident objects are never written.
func (l *Ledger) Save(ctx context.Context, objects types.ObjectSet) (int, error) {
	views := Snapshot(objects)
	if err := l.store.Write(ctx, views); err != nil {
		return 0, err
	}
	l.logger.WithField("entries", len(views)).Info("Saved popularity ledger")
	return len(views), nil
}
