package placement

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediacache/mediacache/internal/inventory"
	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
)

// memOrigin is an in-memory origin store.
type memOrigin struct {
	objects map[string][]byte
	// failAfter makes Open return a reader failing after n bytes.
	failAfter map[string]int
}

func newMemOrigin() *memOrigin {
	return &memOrigin{objects: map[string][]byte{}, failAfter: map[string]int{}}
}

func (m *memOrigin) add(rel string, size int) {
	m.objects[rel] = bytes.Repeat([]byte{'x'}, size)
}

func (m *memOrigin) Stat(_ context.Context, rel string) (*types.ObjectInfo, error) {
	data, ok := m.objects[rel]
	if !ok {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "not found")
	}
	return &types.ObjectInfo{Key: rel, Size: int64(len(data))}, nil
}

func (m *memOrigin) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	data, ok := m.objects[rel]
	if !ok {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "not found")
	}
	if n, ok := m.failAfter[rel]; ok {
		return io.NopCloser(io.MultiReader(bytes.NewReader(data[:n]), errReader{})), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// diskSpace reports capacity minus the bytes currently stored under each root.
func diskSpace(t *testing.T, capacity map[string]int64) inventory.SpaceFunc {
	return func(root string) (int64, error) {
		limit, ok := capacity[root]
		if !ok {
			t.Fatalf("unexpected volume %s", root)
		}
		return limit - usedBytes(t, root), nil
	}
}

func usedBytes(t *testing.T, root string) int64 {
	var used int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			used += info.Size()
		}
		return nil
	})
	require.NoError(t, err)
	return used
}

func writeSized(t *testing.T, root, rel string, size int) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{'c'}, size), 0644))
}

func fileExists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

func tempFiles(t *testing.T, root string) []string {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), inventory.TempPrefix) {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

// fixture is a set of cache volumes with a scanned inventory.
type fixture struct {
	roots  []string
	origin *memOrigin
	inv    *inventory.Inventory
}

func newFixture(t *testing.T, capacities ...int64) *fixture {
	t.Helper()
	f := &fixture{origin: newMemOrigin()}
	capacity := map[string]int64{}
	for _, c := range capacities {
		root := t.TempDir()
		f.roots = append(f.roots, root)
		capacity[root] = c
	}
	volumes := inventory.NewVolumes(f.roots, 0, diskSpace(t, capacity))
	f.inv = inventory.New(volumes)
	return f
}

// cache puts a file on volume idx and registers it with views.
func (f *fixture) cache(t *testing.T, idx int, rel string, size int, views int64) *types.MediaObject {
	writeSized(t, f.roots[idx], rel, size)
	obj := &types.MediaObject{
		RelativePath:    rel,
		SizeBytes:       int64(size),
		CumulativeViews: views,
		Location:        types.VolumeLocation(idx),
	}
	f.inv.Put(obj)
	return obj
}

// candidate adds rel to the origin and registers it as an origin object.
func (f *fixture) candidate(rel string, size int, views int64) *types.MediaObject {
	f.origin.add(rel, size)
	obj := &types.MediaObject{
		RelativePath:    rel,
		SizeBytes:       int64(size),
		CumulativeViews: views,
		Location:        types.OriginLocation,
	}
	f.inv.Put(obj)
	return obj
}

func (f *fixture) engine(opts Options) *Engine {
	return NewEngine(f.inv, NewFSMover(f.origin), opts)
}

type countingRecorder struct {
	placed   int
	evicted  int
	failures map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failures: map[string]int{}}
}

func (r *countingRecorder) RecordPlacement(string, int64) { r.placed++ }
func (r *countingRecorder) RecordEviction(string, int64)  { r.evicted++ }
func (r *countingRecorder) RecordFailure(reason string)   { r.failures[reason]++ }
