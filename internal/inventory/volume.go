package inventory

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
)

// SpaceFunc reports the bytes available to unprivileged writers at path.
type SpaceFunc func(path string) (int64, error)

// StatfsSpace reads free space from the filesystem holding path.
func StatfsSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil //nolint:unconvert // Bsize width differs per platform
}

// Volume is one cache mount. Free space is queried live on every call.
type Volume struct {
	Index    int
	RootPath string
	Reserve  int64

	space SpaceFunc
}

// NewVolumes builds volumes in priority order from root paths.
func NewVolumes(roots []string, reserve int64, space SpaceFunc) []*Volume {
	if space == nil {
		space = StatfsSpace
	}
	volumes := make([]*Volume, 0, len(roots))
	for i, root := range roots {
		volumes = append(volumes, &Volume{
			Index:    i,
			RootPath: filepath.Clean(root),
			Reserve:  reserve,
			space:    space,
		})
	}
	return volumes
}

// Location returns the object location for this volume.
func (v *Volume) Location() types.Location {
	return types.VolumeLocation(v.Index)
}

// FreeSpace returns the live free bytes minus the configured reserve, never negative.
func (v *Volume) FreeSpace() (int64, error) {
	free, err := v.space(v.RootPath)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStatfsFailed,
			fmt.Sprintf("cannot query free space of %s", v.RootPath)).
			WithComponent("inventory").
			WithDetail("volume", v.RootPath)
	}
	free -= v.Reserve
	if free < 0 {
		free = 0
	}
	return free, nil
}

func (v *Volume) String() string {
	return v.RootPath
}
