// Package options provides the functional-options configuration surface
// consumed by pkg/strata and threaded down into internal/engine,
// internal/storage, internal/index, and internal/compaction. It defines
// directory layout, segment sizing, durability, read consistency, and the
// schema the store enforces.
package options

import (
	"strings"
	"time"

	"github.com/iamNilotpal/strata/internal/schema"
)

// WriteDurability controls how aggressively a batch-upsert flushes its
// writes to disk before returning.
type WriteDurability int

const (
	// DurabilityAsync relies on the buffered writer to empty on its own;
	// fastest, weakest guarantee.
	DurabilityAsync WriteDurability = iota
	// DurabilityFlush flushes user-space buffers to the OS on every
	// upsert, without an fsync.
	DurabilityFlush
	// DurabilityFlushSync flushes and fsyncs both files on every upsert
	// batch; slowest, strongest guarantee.
	DurabilityFlushSync
)

func (d WriteDurability) String() string {
	switch d {
	case DurabilityAsync:
		return "Async"
	case DurabilityFlush:
		return "Flush"
	case DurabilityFlushSync:
		return "FlushSync"
	default:
		return "Unknown"
	}
}

// ReadConsistency controls whether a read refreshes in-memory indexes
// from the on-disk log before consulting them.
type ReadConsistency int

const (
	// Eventual serves reads from whatever the memtables currently hold.
	Eventual ReadConsistency = iota
	// Strong refreshes indexes from the on-disk log before every read.
	Strong
)

func (c ReadConsistency) String() string {
	if c == Strong {
		return "Strong"
	}
	return "Eventual"
}

// Options defines the configuration parameters for a strata handle.
type Options struct {
	// DataDir is the directory the database's files live in. Created if
	// absent.
	DataDir string `json:"dataDir"`

	// Schema is the ordered field list this handle enforces.
	Schema *schema.Schema `json:"-"`

	// SegmentSize is the byte threshold at which DoMaintenance rotates
	// the active segment.
	//
	//  - Default: 1GB
	//  - Minimum: 512MB
	//  - Maximum: 4GB
	SegmentSize uint64 `json:"segmentSize"`

	// WriteDurability selects the fsync policy applied to every upsert.
	WriteDurability WriteDurability `json:"writeDurability"`

	// ReadConsistency selects whether reads refresh indexes first.
	ReadConsistency ReadConsistency `json:"readConsistency"`

	// CompactInterval, if non-zero, runs DoMaintenance on a background
	// ticker in addition to any explicit caller-driven calls. Zero
	// disables the background ticker; maintenance is then entirely
	// caller-driven, matching the API surface in the specification.
	CompactInterval time.Duration `json:"compactInterval"`
}

// OptionFunc is a function type that modifies an Options value.
type OptionFunc func(*Options)

// WithDefaultOptions applies the library's default DataDir and SegmentSize
// where an earlier option in the chain left them unset. WriteDurability and
// ReadConsistency are left as they are.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		def := NewDefaultOptions()
		if o.DataDir == "" {
			o.DataDir = def.DataDir
		}
		if o.SegmentSize == 0 {
			o.SegmentSize = def.SegmentSize
		}
	}
}

// WithDataDir sets the primary data directory.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithSchema sets the schema this handle enforces.
func WithSchema(s *schema.Schema) OptionFunc {
	return func(o *Options) {
		if s != nil {
			o.Schema = s
		}
	}
}

// WithSegmentSize sets the byte threshold for rotation.
func WithSegmentSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size >= MinSegmentSize && size <= MaxSegmentSize {
			o.SegmentSize = size
		}
	}
}

// WithWriteDurability sets the durability mode applied to every upsert.
func WithWriteDurability(d WriteDurability) OptionFunc {
	return func(o *Options) {
		o.WriteDurability = d
	}
}

// WithReadConsistency sets whether reads refresh indexes first.
func WithReadConsistency(c ReadConsistency) OptionFunc {
	return func(o *Options) {
		o.ReadConsistency = c
	}
}

// WithCompactInterval sets the background maintenance ticker period.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactInterval = interval
		}
	}
}
