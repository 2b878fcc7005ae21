package popularity

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

type step struct {
	event types.AccessEvent
	err   error
}

type sliceFeed struct {
	steps  []step
	pos    int
	closed bool
}

func events(pairs ...string) *sliceFeed {
	f := &sliceFeed{}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.steps = append(f.steps, step{event: types.AccessEvent{Client: pairs[i], Path: pairs[i+1]}})
	}
	return f
}

func (f *sliceFeed) Next() (types.AccessEvent, error) {
	if f.pos >= len(f.steps) {
		return types.AccessEvent{}, io.EOF
	}
	s := f.steps[f.pos]
	f.pos++
	return s.event, s.err
}

func (f *sliceFeed) Close() error {
	f.closed = true
	return nil
}

func TestComputeTodaysTopDeduplicatesClients(t *testing.T) {
	feed := events(
		"c1", "A",
		"c1", "A",
		"c2", "A",
		"c1", "A",
		"c2", "A",
	)

	top, stats, err := ComputeTodaysTop(feed, 1, utils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, []Tally{{Path: "A", Views: 2}}, top)
	assert.Equal(t, 5, stats.Events)
}

func TestComputeTodaysTopThreshold(t *testing.T) {
	feed := events(
		"c1", "one-viewer",
		"c1", "two-viewers",
		"c2", "two-viewers",
	)

	top, _, err := ComputeTodaysTop(feed, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"two-viewers": 2}, AsMap(top))
}

func TestComputeTodaysTopKeepsFirstSeenOrder(t *testing.T) {
	feed := events(
		"c1", "Z", "c2", "Z",
		"c1", "M", "c2", "M", "c3", "M",
		"c1", "A", "c2", "A",
	)

	top, _, err := ComputeTodaysTop(feed, 2, nil)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "Z", top[0].Path)
	assert.Equal(t, "M", top[1].Path)
	assert.Equal(t, "A", top[2].Path)
}

func TestComputeTodaysTopEmptyAndNilFeed(t *testing.T) {
	top, _, err := ComputeTodaysTop(events(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, top)

	top, _, err = ComputeTodaysTop(nil, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestComputeTodaysTopSkipsMalformed(t *testing.T) {
	feed := events("c1", "A", "c2", "A")
	feed.steps = append([]step{{err: cerrors.NewError(cerrors.ErrCodeMalformedEvent, "garbage")}}, feed.steps...)

	top, stats, err := ComputeTodaysTop(feed, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, []Tally{{Path: "A", Views: 2}}, top)
}

func TestComputeTodaysTopStopsOnReadError(t *testing.T) {
	feed := events("c1", "A", "c2", "A", "c3", "B", "c4", "B")
	feed.steps[2] = step{err: errors.New("unexpected EOF in gzip stream")}

	top, stats, err := ComputeTodaysTop(feed, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, []Tally{{Path: "A", Views: 2}}, top)
}

func TestComputeTodaysTopRejectsZeroThreshold(t *testing.T) {
	_, _, err := ComputeTodaysTop(events(), 0, nil)
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidConfig))
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Observe(types.AccessEvent{Client: "1.1.1.1", Path: "x"}))
	require.NoError(t, tr.Observe(types.AccessEvent{Client: "1.1.1.1", Path: "x"}))
	require.NoError(t, tr.Observe(types.AccessEvent{Client: "2.2.2.2", Path: "x"}))

	assert.Equal(t, 2, tr.Views("x"))
	assert.Equal(t, 0, tr.Views("y"))
	assert.Empty(t, tr.Top(3))
}

func TestComputeTodaysTopCanonicalisesPaths(t *testing.T) {
	feed := events(
		"c1", "films/a.mp4",
		"c2", "/films//a.mp4",
		"c3", "films/./a.mp4",
		"c4", "films/old/../a.mp4",
		"c5", "../outside.mp4",
		"c6", "/",
	)

	top, stats, err := ComputeTodaysTop(feed, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []Tally{{Path: "films/a.mp4", Views: 4}}, top)
	assert.Equal(t, 4, stats.Events)
	assert.Equal(t, 2, stats.Malformed)
	assert.Equal(t, 1, stats.Paths)
}

func TestTrackerRejectsPathsOutsideTheRoot(t *testing.T) {
	tr := NewTracker()
	err := tr.Observe(types.AccessEvent{Client: "c1", Path: "a/../../b"})
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeMalformedEvent))
	assert.Empty(t, tr.Top(1))
}
