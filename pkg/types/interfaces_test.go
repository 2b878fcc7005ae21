package types

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestInterfaces verifies that the interfaces can be satisfied
func TestInterfaces(t *testing.T) {
	var (
		_ OriginStore = (*mockOrigin)(nil)
		_ LedgerStore = (*mockLedger)(nil)
		_ EventFeed   = (*mockFeed)(nil)
		_ RunRecorder = (*mockRecorder)(nil)
	)
}

type mockOrigin struct{}

func (m *mockOrigin) Stat(ctx context.Context, rel string) (*ObjectInfo, error) { return nil, nil }
func (m *mockOrigin) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	return nil, nil
}

type mockLedger struct{}

func (m *mockLedger) Read(ctx context.Context) (map[string]int64, bool, error) { return nil, false, nil }
func (m *mockLedger) Write(ctx context.Context, views map[string]int64) error  { return nil }

type mockFeed struct{}

func (m *mockFeed) Next() (AccessEvent, error) { return AccessEvent{}, io.EOF }
func (m *mockFeed) Close() error               { return nil }

type mockRecorder struct{}

func (m *mockRecorder) RecordPlacement(volume string, size int64) {}
func (m *mockRecorder) RecordEviction(volume string, size int64)  {}
func (m *mockRecorder) RecordFailure(reason string)               {}

func TestLocation(t *testing.T) {
	assert.True(t, OriginLocation.IsOrigin())
	assert.Equal(t, "origin", OriginLocation.String())

	_, ok := OriginLocation.Volume()
	assert.False(t, ok)

	loc := VolumeLocation(2)
	assert.False(t, loc.IsOrigin())
	idx, ok := loc.Volume()
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "volume[2]", loc.String())
}

func TestMediaObject(t *testing.T) {
	obj := &MediaObject{RelativePath: "a.mp4", SizeBytes: 10, Location: OriginLocation}
	assert.False(t, obj.IsCached())

	assert.Equal(t, int64(3), obj.AddViews(3))
	assert.Equal(t, int64(3), obj.AddViews(-5), "negative views must not decrease the count")
	assert.Equal(t, int64(3), obj.AddViews(0))

	obj.Location = VolumeLocation(0)
	assert.True(t, obj.IsCached())
}
