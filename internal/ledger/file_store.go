package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mediacache/mediacache/pkg/errors"
)

// rawKeyPrefix marks a key stored as base64 because the object path is not
// valid UTF-8, which JSON cannot carry without replacing bytes.
const rawKeyPrefix = "b64:"

// FileStore keeps the ledger as a single UTF-8 JSON object on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Path returns the ledger file location.
func (s *FileStore) Path() string {
	return s.path
}

// Read loads the ledger. A missing file is reported as found=false.
func (s *FileStore) Read(ctx context.Context) (map[string]int64, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, errors.ErrCodeLedgerRead,
			fmt.Sprintf("failed to read ledger %s", s.path)).WithComponent("ledger")
	}

	views := make(map[string]int64)
	if len(bytes.TrimSpace(data)) == 0 {
		return views, true, nil
	}
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeLedgerCorrupt,
			fmt.Sprintf("ledger %s is not a JSON object of view counts", s.path)).WithComponent("ledger")
	}

	decoded := make(map[string]int64, len(views))
	for key, n := range views {
		path, err := decodeKey(key)
		if err != nil {
			return nil, false, errors.Wrap(err, errors.ErrCodeLedgerCorrupt,
				fmt.Sprintf("ledger %s has an undecodable key %q", s.path, key)).WithComponent("ledger")
		}
		decoded[path] = n
	}
	return decoded, true, nil
}

// Write replaces the ledger atomically via a temp file and rename.
func (s *FileStore) Write(ctx context.Context, views map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOperationCanceled, "ledger write canceled")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return s.writeErr(err)
	}

	encoded := make(map[string]int64, len(views))
	for path, n := range views {
		encoded[encodeKey(path)] = n
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(encoded); err != nil {
		return s.writeErr(err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return s.writeErr(err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return s.writeErr(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return s.writeErr(err)
	}
	if err := tmp.Close(); err != nil {
		return s.writeErr(err)
	}
	if err := os.Chmod(tmpPath, 0640); err != nil {
		return s.writeErr(err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return s.writeErr(err)
	}
	return nil
}

func (s *FileStore) writeErr(err error) error {
	return errors.Wrap(err, errors.ErrCodeLedgerWrite,
		fmt.Sprintf("failed to write ledger %s", s.path)).WithComponent("ledger")
}

// encodeKey leaves UTF-8 paths readable and base64-encodes the rest. Paths
// that already start with the prefix are encoded too so reading never
// misinterprets them.
func encodeKey(path string) string {
	if utf8.ValidString(path) && !strings.HasPrefix(path, rawKeyPrefix) {
		return path
	}
	return rawKeyPrefix + base64.StdEncoding.EncodeToString([]byte(path))
}

func decodeKey(key string) (string, error) {
	if !strings.HasPrefix(key, rawKeyPrefix) {
		return key, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(key, rawKeyPrefix))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
