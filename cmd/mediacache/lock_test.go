package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacache/mediacache/pkg/errors"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "mediacache.lock")

	release, err := acquireLock(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	_, err = acquireLock(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyRunning))

	release()

	release, err = acquireLock(path)
	require.NoError(t, err)
	release()
}
