package types

import (
	"fmt"
	"time"
)

// Location identifies where a MediaObject currently lives. Non-negative
// values are cache volume indices in configured priority order.
type Location int

// OriginLocation marks an object that only exists on the origin store.
const OriginLocation Location = -1

// IsOrigin reports whether the location is the origin store.
func (l Location) IsOrigin() bool {
	return l < 0
}

// Volume returns the cache volume index; ok is false for the origin.
func (l Location) Volume() (index int, ok bool) {
	if l.IsOrigin() {
		return 0, false
	}
	return int(l), true
}

func (l Location) String() string {
	if l.IsOrigin() {
		return "origin"
	}
	return fmt.Sprintf("volume[%d]", int(l))
}

// VolumeLocation returns the location of the cache volume at index.
func VolumeLocation(index int) Location {
	return Location(index)
}

// MediaObject is a single file known to the cache, keyed by its path
// relative to the origin and volume roots.
type MediaObject struct {
	RelativePath    string   `json:"relative_path"`
	SizeBytes       int64    `json:"size_bytes"`
	CumulativeViews int64    `json:"cumulative_views"`
	Location        Location `json:"location"`
}

// IsCached reports whether the object lives on a cache volume.
func (m *MediaObject) IsCached() bool {
	return !m.Location.IsOrigin()
}

// AddViews folds views into the cumulative count. Negative input is ignored.
func (m *MediaObject) AddViews(views int64) int64 {
	if views > 0 {
		m.CumulativeViews += views
	}
	return m.CumulativeViews
}

// ObjectInfo represents metadata about an origin object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// AccessEvent is one successful request taken from the access log.
type AccessEvent struct {
	Client string `json:"client"`
	Path   string `json:"path"`
}

// VolumeStats is a point-in-time view of one cache volume.
type VolumeStats struct {
	Index     int    `json:"index"`
	RootPath  string `json:"root_path"`
	Objects   int    `json:"objects"`
	UsedBytes int64  `json:"used_bytes"`
	FreeBytes int64  `json:"free_bytes"`
}
