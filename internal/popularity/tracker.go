// Package popularity turns an access-event feed into today's per-object view
// counts, counting each client at most once per object.
package popularity

import (
	stderr "errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Tally is one object's view count for the feed window.
type Tally struct {
	Path  string
	Views int
}

// Tracker accumulates distinct clients per path in first-seen order.
type Tracker struct {
	order   []string
	clients map[string]map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{clients: make(map[string]map[string]struct{})}
}

// Observe records one access event under the canonical form of its path, so
// "films//a.mp4" and "films/a.mp4" count as the same object. Events whose path
// names no object or escapes the root return a FEED_MALFORMED_EVENT error.
func (t *Tracker) Observe(event types.AccessEvent) error {
	key, err := utils.CleanObjectKey(event.Path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMalformedEvent, "invalid request path").
			WithComponent("popularity").WithDetail("path", event.Path)
	}
	if key == "" {
		return errors.Newf(errors.ErrCodeMalformedEvent, "request path %q names no object", event.Path).
			WithComponent("popularity")
	}

	seen, ok := t.clients[key]
	if !ok {
		seen = make(map[string]struct{})
		t.clients[key] = seen
		t.order = append(t.order, key)
	}
	seen[event.Client] = struct{}{}
	return nil
}

// Views returns the distinct client count for path.
func (t *Tracker) Views(path string) int {
	return len(t.clients[path])
}

// Top returns every path with at least minViews distinct clients, in the
// order each path first appeared in the feed.
func (t *Tracker) Top(minViews int) []Tally {
	var top []Tally
	for _, path := range t.order {
		if n := t.Views(path); n >= minViews {
			top = append(top, Tally{Path: path, Views: n})
		}
	}
	return top
}

// Stats describes a feed pass.
type Stats struct {
	Events    int
	Malformed int
	Paths     int
}

// ComputeTodaysTop drains feed and returns the paths whose distinct-client
// count reaches minViews. Malformed events are skipped. A feed that fails
// mid-stream keeps what was counted so far; an empty feed yields nothing.
func ComputeTodaysTop(feed types.EventFeed, minViews int, logger logrus.FieldLogger) ([]Tally, Stats, error) {
	log := utils.WithComponent(logger, "popularity")
	if minViews < 1 {
		return nil, Stats{}, errors.Newf(errors.ErrCodeInvalidConfig, "minimum views must be at least 1, got %d", minViews).
			WithComponent("popularity")
	}

	tracker := NewTracker()
	var stats Stats
	if feed != nil {
		for {
			event, err := feed.Next()
			if err != nil {
				if stderr.Is(err, io.EOF) {
					break
				}
				if errors.HasCode(err, errors.ErrCodeMalformedEvent) {
					stats.Malformed++
					log.WithError(err).Debug("Skipping malformed access event")
					continue
				}
				log.WithError(err).Warn("Access log read failed; using events counted so far")
				break
			}
			if err := tracker.Observe(event); err != nil {
				stats.Malformed++
				log.WithError(err).Debug("Skipping access event")
				continue
			}
			stats.Events++
		}
	}

	stats.Paths = len(tracker.order)
	top := tracker.Top(minViews)
	log.WithFields(logrus.Fields{
		"events":    stats.Events,
		"malformed": stats.Malformed,
		"paths":     stats.Paths,
		"top":       len(top),
		"min_views": minViews,
	}).Info("Computed today's top objects")
	return top, stats, nil
}

// AsMap converts tallies to a path → views map.
func AsMap(top []Tally) map[string]int {
	out := make(map[string]int, len(top))
	for _, t := range top {
		out[t.Path] = t.Views
	}
	return out
}
