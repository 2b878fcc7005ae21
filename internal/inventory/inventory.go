package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Inventory is the run's view of every object on the cache volumes, plus any
// origin objects the orchestrator registers as candidates.
type Inventory struct {
	volumes []*Volume
	objects map[string]*types.MediaObject
}

// New returns an empty inventory over volumes.
func New(volumes []*Volume) *Inventory {
	return &Inventory{
		volumes: volumes,
		objects: make(map[string]*types.MediaObject),
	}
}

// Scan enumerates every regular file on every volume. When the same
// relative path appears on more than one volume the later volume wins and a
// warning is logged. Scanning never modifies a volume.
func Scan(ctx context.Context, volumes []*Volume, logger logrus.FieldLogger) (*Inventory, error) {
	log := utils.WithComponent(logger, "inventory")
	inv := New(volumes)

	for _, vol := range volumes {
		info, err := os.Stat(vol.RootPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeScanFailed,
				fmt.Sprintf("cache volume %s is not accessible", vol.RootPath)).
				WithComponent("inventory").WithOperation("scan")
		}
		if !info.IsDir() {
			return nil, errors.Newf(errors.ErrCodeScanFailed, "cache volume %s is not a directory", vol.RootPath).
				WithComponent("inventory").WithOperation("scan")
		}

		count := 0
		err = filepath.WalkDir(vol.RootPath, func(path string, d fs.DirEntry, walkErr error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if walkErr != nil {
				if path == vol.RootPath {
					return walkErr
				}
				log.WithError(walkErr).WithField("path", path).Warn("Skipping unreadable entry")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if isTempFile(d.Name()) {
				return nil
			}

			fileInfo, err := d.Info()
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("Skipping file that vanished during scan")
				return nil
			}
			rel, err := utils.RelativeTo(vol.RootPath, path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("Skipping file with unusable path")
				return nil
			}

			if prev, exists := inv.objects[rel]; exists {
				log.WithFields(logrus.Fields{
					"path":     rel,
					"previous": inv.volumeRoot(prev.Location),
					"volume":   vol.RootPath,
				}).Warn("Object present on more than one volume; keeping the later copy")
			}
			inv.objects[rel] = &types.MediaObject{
				RelativePath: rel,
				SizeBytes:    fileInfo.Size(),
				Location:     vol.Location(),
			}
			count++
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), errors.ErrCodeOperationCanceled, "inventory scan canceled")
			}
			return nil, errors.Wrap(err, errors.ErrCodeScanFailed,
				fmt.Sprintf("failed to scan %s", vol.RootPath)).
				WithComponent("inventory").WithOperation("scan")
		}

		log.WithFields(logrus.Fields{
			"volume":  vol.RootPath,
			"objects": count,
		}).Info("Scanned cache volume")
	}

	log.WithField("objects", len(inv.objects)).Info("Inventory complete")
	return inv, nil
}

// TempPrefix marks in-flight copies; scans ignore files carrying it.
const TempPrefix = ".mediacache-tmp-"

func isTempFile(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

// Volumes returns the volumes in priority order.
func (i *Inventory) Volumes() []*Volume {
	return i.volumes
}

// Volume returns the volume for loc, or nil for the origin.
func (i *Inventory) Volume(loc types.Location) *Volume {
	idx, ok := loc.Volume()
	if !ok || idx >= len(i.volumes) {
		return nil
	}
	return i.volumes[idx]
}

func (i *Inventory) volumeRoot(loc types.Location) string {
	if vol := i.Volume(loc); vol != nil {
		return vol.RootPath
	}
	return loc.String()
}

// Get returns the object stored under relativePath.
func (i *Inventory) Get(relativePath string) (*types.MediaObject, bool) {
	obj, ok := i.objects[relativePath]
	return obj, ok
}

// Put adds or replaces an object.
func (i *Inventory) Put(obj *types.MediaObject) {
	i.objects[obj.RelativePath] = obj
}

// Remove drops an object from the inventory.
func (i *Inventory) Remove(relativePath string) {
	delete(i.objects, relativePath)
}

// Len returns the number of objects, cached or not.
func (i *Inventory) Len() int {
	return len(i.objects)
}

// Cached returns every cache-resident object sorted by relative path.
func (i *Inventory) Cached() []*types.MediaObject {
	out := make([]*types.MediaObject, 0, len(i.objects))
	for _, obj := range i.objects {
		if obj.IsCached() {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].RelativePath < out[b].RelativePath
	})
	return out
}

// Stats summarises each volume. Free space is queried live; a probe
// failure leaves FreeBytes at -1.
func (i *Inventory) Stats() []types.VolumeStats {
	stats := make([]types.VolumeStats, len(i.volumes))
	for idx, vol := range i.volumes {
		stats[idx] = types.VolumeStats{Index: idx, RootPath: vol.RootPath, FreeBytes: -1}
		if free, err := vol.FreeSpace(); err == nil {
			stats[idx].FreeBytes = free
		}
	}
	for _, obj := range i.objects {
		if idx, ok := obj.Location.Volume(); ok && idx < len(stats) {
			stats[idx].Objects++
			stats[idx].UsedBytes += obj.SizeBytes
		}
	}
	return stats
}
