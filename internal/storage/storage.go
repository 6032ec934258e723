// Package storage manages the on-disk segment files of a strata database:
// the active segment writers append to, the writer-priority lock protocol
// guarding concurrent access, the forward log reader used for
// materialization and index refresh, and the rotate-and-compact procedure
// that retires a full segment.
//
// A directory is bootstrapped on first Open (segment 1, its header, and the
// active symlink) under init_lock, and subsequent opens resolve the active
// symlink to find where to resume appending.
package storage

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/pkg/errors"
	"github.com/iamNilotpal/strata/pkg/filesys"
	"github.com/iamNilotpal/strata/pkg/options"
	"github.com/iamNilotpal/strata/pkg/seginfo"
	"go.uber.org/zap"
)

var ErrStorageClosed = stdErrors.New("operation failed: cannot access closed storage")

// Storage owns the directory's segment files for one process's handle. It
// tracks the active segment it last observed and re-resolves `active`
// whenever another writer has rotated it out from under this handle.
type Storage struct {
	dir    string
	opts   *options.Options
	log    *zap.SugaredLogger
	locker *Locker
	closed atomic.Bool

	mu        sync.Mutex
	active    *segmentFiles
	activeNum uint16
}

// Open bootstraps dir (creating segment 1 under init_lock if empty) or
// resolves the existing active segment, and returns a Storage ready to
// append and read.
func Open(ctx context.Context, config *Config) (*Storage, error) {
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, fmt.Errorf("storage: configuration is required")
	}

	dir := config.Options.DataDir
	if err := filesys.CreateDir(dir, 0755, true); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to create data directory").
			WithPath(dir)
	}

	s := &Storage{dir: dir, opts: config.Options, log: config.Logger, locker: NewLocker(dir)}

	seg, num, err := s.bootstrapOrOpenActive()
	if err != nil {
		return nil, err
	}

	s.active = seg
	s.activeNum = num
	config.Logger.Infow("storage opened", "dataDir", dir, "activeSegment", num)
	return s, nil
}

func (s *Storage) bootstrapOrOpenActive() (*segmentFiles, uint16, error) {
	activePath := seginfo.ActivePath(s.dir)

	exists, err := filesys.Exists(activePath)
	if err != nil {
		return nil, 0, err
	}
	if exists {
		return s.openActiveFromDisk()
	}

	release, err := s.locker.AcquireInitLock()
	if err != nil {
		return nil, 0, err
	}
	defer release()

	// Re-check now that we hold init_lock; another process may have
	// bootstrapped the directory while we were waiting for the lock.
	exists, err = filesys.Exists(activePath)
	if err != nil {
		return nil, 0, err
	}
	if exists {
		return s.openActiveFromDisk()
	}

	seg, err := createSegment(s.dir, 1)
	if err != nil {
		return nil, 0, err
	}
	if err := filesys.ReplaceSymlink(seginfo.MetadataName(1), activePath); err != nil {
		seg.close()
		return nil, 0, err
	}
	return seg, 1, nil
}

func (s *Storage) openActiveFromDisk() (*segmentFiles, uint16, error) {
	num, err := seginfo.ActiveSegmentNum(s.dir)
	if err != nil {
		return nil, 0, err
	}
	seg, err := openSegment(s.dir, num)
	if err != nil {
		return nil, 0, err
	}
	return seg, num, nil
}

// reloadActive re-resolves `active` against the current on-disk state and
// swaps it in, closing the stale handle. Called when a SameFile check finds
// another process rotated the segment; this handle's own compaction swaps
// s.active itself.
func (s *Storage) reloadActive() error {
	seg, num, err := s.openActiveFromDisk()
	if err != nil {
		return err
	}
	old := s.active
	s.active = seg
	s.activeNum = num
	return old.close()
}

// acquireExclusiveActive takes the writer-priority exclusive lock on
// whatever segment is currently active, re-resolving and retrying once if
// the segment rotated between observing s.active and acquiring the lock.
func (s *Storage) acquireExclusiveActive() (seg *segmentFiles, num uint16, release func() error, err error) {
	for attempt := 0; ; attempt++ {
		seg = s.active
		num = s.activeNum

		rel, lockErr := s.locker.AcquireExclusive(seg.metaFile)
		if lockErr != nil {
			return nil, 0, nil, lockErr
		}

		same, sameErr := SameFile(seg.metaFile, seginfo.ActivePath(s.dir))
		if sameErr != nil {
			_ = rel()
			return nil, 0, nil, sameErr
		}
		if same {
			return seg, num, rel, nil
		}

		_ = rel()
		if attempt >= 1 {
			return nil, 0, nil, fmt.Errorf("storage: active segment rotated repeatedly; giving up after one retry")
		}
		if reloadErr := s.reloadActive(); reloadErr != nil {
			return nil, 0, nil, reloadErr
		}
	}
}

// AppendBatch appends the serialized form of each record to the active
// segment under the writer-priority exclusive lock, applying the
// configured durability policy once for the whole batch, and returns the
// LogKey assigned to each record in order.
func (s *Storage) AppendBatch(records []codec.Record) ([]LogKey, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seg, num, release, err := s.acquireExclusiveActive()
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-validate the segment header: version byte and UUID still parse,
	// and the data file it names is still the one we hold open.
	dataUUID, err := readHeader(num, seg.metaFile, seg.metaPath)
	if err != nil {
		return nil, err
	}
	if dataUUID != seg.dataUUID {
		return nil, errors.NewConsistencyError(nil, errors.ErrorCodeDataFileMissing, "segment header names a different data file than the one held open").
			WithSegmentNum(num).
			WithPath(seg.metaPath)
	}

	keys := make([]LogKey, 0, len(records))
	for _, rec := range records {
		buf := rec.Serialize()
		offset, err := seg.appendData(buf)
		if err != nil {
			return nil, err
		}
		idx, err := seg.appendMetaRow(uint64(offset), uint64(len(buf)))
		if err != nil {
			return nil, err
		}
		lk, err := NewLogKey(num, idx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, lk)
	}

	flushOnly := s.opts.WriteDurability >= options.DurabilityFlush
	sync := s.opts.WriteDurability == options.DurabilityFlushSync
	if err := seg.flush(flushOnly, sync); err != nil {
		return nil, err
	}

	return keys, nil
}

// ShouldRotate reports whether the active segment's metadata file has
// reached the configured size threshold.
func (s *Storage) ShouldRotate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(s.active.metaSize) >= s.opts.SegmentSize
}

// CurrentActiveSegmentNum resolves `active` fresh from disk, reflecting
// rotations made by any process, not just this handle's cached view.
func (s *Storage) CurrentActiveSegmentNum() (uint16, error) {
	return seginfo.ActiveSegmentNum(s.dir)
}

// DataDir returns the directory this Storage manages.
func (s *Storage) DataDir() string { return s.dir }

// Locker returns the lock protocol helper this Storage uses for its own
// segment locks.
func (s *Storage) Locker() *Locker { return s.locker }

// SegmentReadHandle bundles the open, shared-locked metadata+data file pair
// for one segment, for materialization and index-refresh reads.
type SegmentReadHandle struct {
	Num      uint16
	MetaFile *os.File
	DataFile *os.File
	MetaPath string
	DataPath string

	release func() error
}

// Close releases the shared lock and closes both file handles.
func (h *SegmentReadHandle) Close() error {
	lockErr := h.release()
	metaErr := h.MetaFile.Close()
	dataErr := h.DataFile.Close()
	if lockErr != nil {
		return lockErr
	}
	if metaErr != nil {
		return metaErr
	}
	return dataErr
}

// OpenSegmentShared opens segment num for reading under a shared lock,
// validating its header and size invariant before returning.
func (s *Storage) OpenSegmentShared(num uint16) (*SegmentReadHandle, error) {
	metaPath := seginfo.MetadataPath(s.dir, num)
	metaFile, err := os.OpenFile(metaPath, os.O_RDONLY, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, metaPath, seginfo.MetadataName(num))
	}

	release, err := s.locker.AcquireShared(metaFile)
	if err != nil {
		metaFile.Close()
		return nil, err
	}

	dataUUID, err := readHeader(num, metaFile, metaPath)
	if err != nil {
		release()
		metaFile.Close()
		return nil, err
	}

	metaInfo, err := metaFile.Stat()
	if err != nil {
		release()
		metaFile.Close()
		return nil, err
	}
	if (metaInfo.Size()-headerSize)%rowSize != 0 {
		release()
		metaFile.Close()
		return nil, errors.NewMetadataSizeError(num, metaPath, metaInfo.Size())
	}

	dataPath := filepath.Join(s.dir, dataUUID.String())
	dataFile, err := os.OpenFile(dataPath, os.O_RDONLY, 0644)
	if err != nil {
		release()
		metaFile.Close()
		return nil, errors.NewDataFileMissingError(num, dataUUID.String(), err)
	}

	return &SegmentReadHandle{
		Num: num, MetaFile: metaFile, DataFile: dataFile,
		MetaPath: metaPath, DataPath: dataPath, release: release,
	}, nil
}

// Close flushes and closes the active segment.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrStorageClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.close()
}
