// Package atomicfile provides the temp-file-plus-rename write pattern used
// for every on-disk JSON document the broker owns (trust store, token
// store): a reader never observes a partially written file.
package atomicfile

import (
	"os"
	"path/filepath"
)

// WriteFile writes data to path atomically: it writes to a sibling temp
// file in the same directory (so the rename is same-filesystem) then
// renames over path, with perm applied before the rename.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
