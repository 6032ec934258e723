package index

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
	"go.uber.org/zap"
)

// Cursor marks how far Refresh has replayed the log.
type Cursor struct {
	Segment uint16
	Index   uint64
}

// secondaryEntry remembers the value and LogKey a primary key last
// contributed to one secondary field's memtable, so a later tombstone or
// update can remove exactly that stale entry instead of leaving it behind.
type secondaryEntry struct {
	value schema.Indexable
	key   storage.LogKey
}

// Index holds the primary and secondary memtables for one schema and the
// refresh cursor tracking how much of the log they reflect.
//
// The Index keeps every key in memory while values stay on disk, matching
// the memory/storage split the Bitcask-style design this package descends
// from always made — only the per-key payload shrank from a byte offset and
// length to a single packed LogKey, since materialization now goes through
// the forward reader instead of a direct pread.
type Index struct {
	log    *zap.SugaredLogger
	schema *schema.Schema
	closed atomic.Bool

	mu             sync.RWMutex
	primary        *btree.BTree
	secondary      map[string]*btree.BTree
	secondaryState map[string]map[schema.Indexable]secondaryEntry
	cursor         Cursor
}

// Config encapsulates the configuration parameters required to initialize
// an Index.
type Config struct {
	Schema *schema.Schema
	Logger *zap.SugaredLogger
}
