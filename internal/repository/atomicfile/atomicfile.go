// Package atomicfile replaces files so that readers observe either the previous
// contents or the new contents, never a partial write.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// RenameFunc moves the finished temporary file over the target.
type RenameFunc func(oldpath, newpath string) error

// Write atomically replaces path with data.
func Write(path string, data []byte, perm os.FileMode) error {
	return WriteWith(path, data, perm, os.Rename)
}

// WriteWith is Write with a custom rename step.
//
// The data goes to a temporary file in the same directory, which is synced and closed
// before being renamed over path. The directory is synced afterwards so the rename
// survives a power loss. On any failure before the rename the temporary file is
// removed and path is left untouched.
func WriteWith(path string, data []byte, perm os.FileMode, rename RenameFunc) (err error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}

	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temporary file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temporary file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file: %w", err)
	}

	if err = rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}

	syncErr := d.Sync()
	closeErr := d.Close()

	// Some filesystems refuse to fsync directories; the rename has already happened.
	if syncErr != nil && !errors.Is(syncErr, os.ErrInvalid) {
		return errors.Join(fmt.Errorf("sync directory: %w", syncErr), closeErr)
	}

	return closeErr
}
