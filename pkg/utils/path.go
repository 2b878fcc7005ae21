package utils

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidateRelativePath checks that an object key is a clean relative path
// which cannot escape the root it is later joined to.
//
// Returns an error if the path:
//   - is empty or "."
//   - is absolute
//   - contains ".." segments or NUL bytes
func ValidateRelativePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte: %q", path)
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == "." {
		return fmt.Errorf("path does not name an object: %s", path)
	}
	for _, segment := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// CleanObjectKey reduces a slash-separated object path to the canonical key
// form used by the inventory and the ledger: no leading, repeated or trailing
// slashes and no "." or ".." segments. The root itself yields "". A path that
// climbs above the root is an error.
func CleanObjectKey(key string) (string, error) {
	clean := path.Clean(strings.TrimLeft(key, "/"))
	switch {
	case clean == ".":
		return "", nil
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("path escapes the root: %q", key)
	}
	return clean, nil
}

// SecureJoin safely joins path elements and ensures the result stays within the base directory.
// Unlike filepath.Join, this function rejects results that escape base through traversal.
//
// Example usage:
//
//	dst, err := SecureJoin(volume.RootPath, object.RelativePath)
//	if err != nil {
//		return fmt.Errorf("invalid object path: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if fullPath != cleanBase && !strings.HasPrefix(fullPath, withSeparator(cleanBase)) {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}

// RelativeTo returns path relative to base using forward slashes, the form
// object keys take everywhere in the cache.
func RelativeTo(base, path string) (string, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", err
	}
	if err := ValidateRelativePath(rel); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func withSeparator(p string) string {
	if strings.HasSuffix(p, string(filepath.Separator)) {
		return p
	}
	return p + string(filepath.Separator)
}
