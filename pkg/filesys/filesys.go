// Package filesys provides the small set of file system utilities the
// segment storage layer needs: directory bootstrap, existence checks, and
// the active-pointer symlink dance, plus an atomic-rename helper for
// compaction's metadata swap.
package filesys

import (
	"errors"
	"os"
)

var ErrIsNotDir = errors.New("path isn't a directory")

// CreateDir creates a directory at the specified path with the given
// permissions, then sets its mode to 0755. If force is false and the path
// already exists (or stat fails for a reason other than non-existence),
// the stat result is returned as-is and nothing is created, so an existing
// path yields nil. If force is true and the existing path is a file,
// ErrIsNotDir is returned.
func CreateDir(dirPath string, permission os.FileMode, force bool) error {
	stat, err := os.Stat(dirPath)
	if !force && !os.IsNotExist(err) {
		return err
	}

	if stat != nil && !stat.IsDir() {
		return ErrIsNotDir
	}

	if err := os.MkdirAll(dirPath, permission); err != nil {
		return err
	}

	return os.Chmod(dirPath, 0755)
}

// Exists checks if a file or directory at the given path exists.
func Exists(file string) (bool, error) {
	_, err := os.Stat(file)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReplaceSymlink atomically re-points the symlink at linkPath to target.
// It creates a temporary link next to linkPath and renames it over the
// existing one, so a reader never observes a missing or half-written link.
func ReplaceSymlink(target, linkPath string) error {
	tmp := linkPath + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, linkPath)
}

// AtomicReplaceFile renames src over dst, both of which must be on the
// same file system, so the replacement is a single atomic directory
// operation rather than a truncate-then-write.
func AtomicReplaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
