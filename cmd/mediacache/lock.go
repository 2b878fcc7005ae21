package main

import (
	stderr "errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mediacache/mediacache/pkg/errors"
)

// acquireLock takes a non-blocking exclusive flock on path. The returned
// function releases it.
func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, "cannot create lock directory").
			WithDetail("lock_file", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640) // #nosec G304 -- operator-supplied lock path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePermissionDenied, "cannot open lock file").
			WithDetail("lock_file", path)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if stderr.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.NewError(errors.ErrCodeAlreadyRunning, "another run holds the lock").
				WithDetail("lock_file", path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "cannot lock").
			WithDetail("lock_file", path)
	}

	_ = file.Truncate(0)
	_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())

	return func() {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
	}, nil
}
