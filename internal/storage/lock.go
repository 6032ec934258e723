package storage

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/iamNilotpal/strata/pkg/seginfo"
)

// Locker implements the writer-priority lock protocol: every segment
// metadata file is guarded by an OS advisory flock, and a shared barrier
// file (excl_lock_req) makes shared-lock acquisition yield to a pending
// exclusive locker.
//
// Acquire shared:    shared(barrier) -> shared(target) -> release(barrier)
// Acquire exclusive: exclusive(barrier) -> exclusive(target) -> release(barrier)
//
// A pending writer holding the barrier exclusively therefore blocks new
// readers until it passes through, while readers already holding the
// target's shared lock are unaffected (flock never revokes a held lock).
type Locker struct {
	dir string
}

// NewLocker returns a Locker operating against the segment files in dir.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir}
}

func (l *Locker) barrierPath() string {
	return filepath.Join(l.dir, seginfo.ExclLockReqName)
}

func (l *Locker) initLockPath() string {
	return filepath.Join(l.dir, seginfo.InitLockName)
}

// AcquireShared takes a shared lock on target through the writer-priority
// barrier. The returned release function unlocks target; call it exactly
// once when done.
func (l *Locker) AcquireShared(target *os.File) (release func() error, err error) {
	return l.acquire(target, syscall.LOCK_SH)
}

// AcquireExclusive takes an exclusive lock on target (expected to be the
// active segment's metadata file) through the writer-priority barrier.
func (l *Locker) AcquireExclusive(target *os.File) (release func() error, err error) {
	return l.acquire(target, syscall.LOCK_EX)
}

func (l *Locker) acquire(target *os.File, how int) (func() error, error) {
	barrier, err := os.OpenFile(l.barrierPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	defer barrier.Close()

	if err := flock(barrier, how); err != nil {
		return nil, err
	}

	if err := flock(target, how); err != nil {
		_ = flock(barrier, syscall.LOCK_UN)
		return nil, err
	}

	if err := flock(barrier, syscall.LOCK_UN); err != nil {
		_ = flock(target, syscall.LOCK_UN)
		return nil, err
	}

	return func() error { return flock(target, syscall.LOCK_UN) }, nil
}

// AcquireInitLock takes an exclusive lock on the bootstrap-only init_lock
// file, used to guard create-if-empty initialization.
func (l *Locker) AcquireInitLock() (release func() error, err error) {
	f, err := os.OpenFile(l.initLockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := flock(f, syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() error {
		err := flock(f, syscall.LOCK_UN)
		f.Close()
		return err
	}, nil
}

// flock wraps syscall.Flock, retrying on EINTR the way blocking syscalls
// are expected to be retried rather than surfaced as spurious failures.
func flock(f *os.File, how int) error {
	fd := int(f.Fd())
	for {
		err := syscall.Flock(fd, how)
		if err == nil {
			return nil
		}
		if err == syscall.EINTR {
			continue
		}
		return err
	}
}

// SameFile reports whether the open handle f still refers to the same
// inode that path currently resolves to. The engine calls this right
// after acquiring the exclusive lock on what it believes is the active
// segment, to detect a rotation that happened between opening the handle
// and acquiring the lock.
func SameFile(f *os.File, path string) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	pi, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	fst, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return os.SameFile(fi, pi), nil
	}
	pst, ok := pi.Sys().(*syscall.Stat_t)
	if !ok {
		return os.SameFile(fi, pi), nil
	}

	return fst.Dev == pst.Dev && fst.Ino == pst.Ino, nil
}
