package placement

import (
	"context"
	stderr "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mediacache/mediacache/internal/inventory"
	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Mover copies objects from the origin onto a volume and deletes them again.
type Mover interface {
	// Copy materialises relativePath under volumeRoot and returns the bytes written.
	// On error nothing is left at the destination.
	Copy(ctx context.Context, relativePath, volumeRoot string) (int64, error)
	// Remove deletes relativePath under volumeRoot. A file that is already gone is not an error.
	Remove(ctx context.Context, relativePath, volumeRoot string) error
}

// FSMover moves objects between an origin store and local cache volumes.
type FSMover struct {
	origin   types.OriginStore
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewFSMover returns a mover reading from origin.
func NewFSMover(origin types.OriginStore) *FSMover {
	return &FSMover{
		origin:   origin,
		dirMode:  0755,
		fileMode: 0644,
	}
}

// Copy streams the object into a temp file beside the destination, syncs it
// and renames it into place.
func (m *FSMover) Copy(ctx context.Context, relativePath, volumeRoot string) (int64, error) {
	dst, err := utils.SecureJoin(volumeRoot, relativePath)
	if err != nil {
		return 0, copyError(err, errors.ErrCodePathInvalid, relativePath, volumeRoot)
	}

	src, err := m.origin.Open(ctx, relativePath)
	if err != nil {
		return 0, copyError(err, errors.ErrCodeCopyFailed, relativePath, volumeRoot)
	}
	defer src.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, m.dirMode); err != nil {
		return 0, copyError(err, errors.ErrCodeCopyFailed, relativePath, volumeRoot)
	}

	written, err := m.writeAtomic(ctx, src, dir, dst)
	if err != nil {
		pruneEmptyDirs(volumeRoot, dir)
		return 0, copyError(err, errors.ErrCodeCopyFailed, relativePath, volumeRoot)
	}
	return written, nil
}

func (m *FSMover) writeAtomic(ctx context.Context, src io.Reader, dir, dst string) (written int64, err error) {
	tmp, err := os.CreateTemp(dir, inventory.TempPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err = io.Copy(tmp, &contextReader{ctx: ctx, r: src})
	if err != nil {
		return 0, err
	}
	if err = tmp.Sync(); err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}
	if err = os.Chmod(tmpName, m.fileMode); err != nil {
		return 0, err
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return 0, err
	}
	return written, nil
}

// Remove deletes the file and prunes parent directories left empty.
func (m *FSMover) Remove(ctx context.Context, relativePath, volumeRoot string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOperationCanceled, "delete canceled")
	}
	target, err := utils.SecureJoin(volumeRoot, relativePath)
	if err != nil {
		return deleteError(err, errors.ErrCodePathInvalid, relativePath, volumeRoot)
	}

	if err := os.Remove(target); err != nil && !stderr.Is(err, fs.ErrNotExist) {
		return deleteError(err, errors.ErrCodeDeleteFailed, relativePath, volumeRoot)
	}
	pruneEmptyDirs(volumeRoot, filepath.Dir(target))
	return nil
}

// pruneEmptyDirs removes dir and its ancestors while they are empty, stopping at root.
func pruneEmptyDirs(root, dir string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func copyError(err error, code errors.ErrorCode, relativePath, volumeRoot string) error {
	if stderr.Is(err, context.Canceled) || stderr.Is(err, context.DeadlineExceeded) {
		code = errors.ErrCodeOperationCanceled
	}
	return errors.Wrap(err, code, "copy from origin failed").
		WithComponent("placement").
		WithOperation("copy").
		WithDetail("path", relativePath).
		WithDetail("volume", volumeRoot)
}

func deleteError(err error, code errors.ErrorCode, relativePath, volumeRoot string) error {
	return errors.Wrap(err, code, "delete from volume failed").
		WithComponent("placement").
		WithOperation("delete").
		WithDetail("path", relativePath).
		WithDetail("volume", volumeRoot)
}
