// Package seginfo names and parses the on-disk segment files.
//
// Filename format:
//
//	metadata.<N>   the metadata file for segment N (1-based decimal)
//	active         a symlink to the current metadata.<N>
//
// Data files are named by the UUID embedded in their metadata header, not
// by any naming convention seginfo understands — they're opaque to this
// package.
package seginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// MetadataPrefix is the filename prefix shared by every metadata file.
	MetadataPrefix = "metadata."

	// ActiveLinkName is the filename of the active-pointer symlink.
	ActiveLinkName = "active"

	// ExclLockReqName is the writer-priority barrier file.
	ExclLockReqName = "excl_lock_req"

	// InitLockName is the bootstrap-only lock file.
	InitLockName = "init_lock"
)

// MetadataName returns the metadata filename for segment n.
func MetadataName(n uint16) string {
	return fmt.Sprintf("%s%d", MetadataPrefix, n)
}

// MetadataPath joins dataDir with the metadata filename for segment n.
func MetadataPath(dataDir string, n uint16) string {
	return filepath.Join(dataDir, MetadataName(n))
}

// ParseSegmentNum extracts the segment number from a metadata filename
// (e.g. "metadata.3" -> 3, "metadata.70000" -> error, out of u16 range).
func ParseSegmentNum(filename string) (uint16, error) {
	base := filepath.Base(filename)
	if !strings.HasPrefix(base, MetadataPrefix) {
		return 0, fmt.Errorf("filename %q does not start with prefix %q", base, MetadataPrefix)
	}

	numStr := strings.TrimPrefix(base, MetadataPrefix)
	n, err := strconv.ParseUint(numStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("filename %q has non-numeric segment suffix: %w", base, err)
	}

	return uint16(n), nil
}

// ActiveSegmentNum resolves the `active` symlink in dataDir and returns the
// segment number it points at.
func ActiveSegmentNum(dataDir string) (uint16, error) {
	linkPath := filepath.Join(dataDir, ActiveLinkName)
	target, err := os.Readlink(linkPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read active link %s: %w", linkPath, err)
	}
	return ParseSegmentNum(target)
}

// ActivePath returns the path to dataDir's active-pointer symlink, joined
// onto dataDir as given.
func ActivePath(dataDir string) string {
	return filepath.Join(dataDir, ActiveLinkName)
}
