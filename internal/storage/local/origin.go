// Package local provides an origin store over a mounted directory tree.
package local

import (
	"context"
	stderr "errors"
	"io"
	"io/fs"
	"os"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Origin serves objects from a local or network-mounted root directory.
type Origin struct {
	root string
}

// NewOrigin returns an origin rooted at root. The root must be an existing directory.
func NewOrigin(root string) (*Origin, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "origin root is not accessible").
			WithComponent("origin").WithDetail("root", root)
	}
	if !info.IsDir() {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "origin root is not a directory").
			WithComponent("origin").WithDetail("root", root)
	}
	return &Origin{root: root}, nil
}

// Root returns the origin directory.
func (o *Origin) Root() string {
	return o.root
}

// Stat returns the size of a regular file under the origin root.
func (o *Origin) Stat(ctx context.Context, relativePath string) (*types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "stat canceled")
	}
	full, err := o.resolve(relativePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, o.translate(err, "stat", relativePath)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "origin path is not a regular file").
			WithComponent("origin").WithDetail("path", relativePath)
	}

	return &types.ObjectInfo{
		Key:          relativePath,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// Open opens an origin file for reading.
func (o *Origin) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "open canceled")
	}
	full, err := o.resolve(relativePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full) // #nosec G304 -- path validated and joined under the origin root
	if err != nil {
		return nil, o.translate(err, "open", relativePath)
	}
	return file, nil
}

func (o *Origin) resolve(relativePath string) (string, error) {
	if err := utils.ValidateRelativePath(relativePath); err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, "invalid origin path").
			WithComponent("origin").WithDetail("path", relativePath)
	}
	full, err := utils.SecureJoin(o.root, relativePath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, "invalid origin path").
			WithComponent("origin").WithDetail("path", relativePath)
	}
	return full, nil
}

func (o *Origin) translate(err error, operation, relativePath string) error {
	code := errors.ErrCodeStorageRead
	switch {
	case stderr.Is(err, fs.ErrNotExist):
		code = errors.ErrCodeObjectNotFound
	case stderr.Is(err, fs.ErrPermission):
		code = errors.ErrCodePermissionDenied
	}
	return errors.Wrap(err, code, operation+" failed on origin").
		WithComponent("origin").
		WithOperation(operation).
		WithDetail("path", relativePath)
}
