// Package index maintains the in-memory ordered indexes a strata engine
// consults for point, batch, and range reads: one primary memtable mapping
// the primary key to its most recent LogKey, and one secondary memtable per
// secondary field mapping that field's value to the set of LogKeys whose
// current record carries it.
//
// Both kinds are backed by github.com/google/btree so range queries get
// in-order iteration without a separate sorted structure. Indexes are
// rebuilt by replaying segment files forward from a cursor the engine
// advances via Refresh; they hold no state that isn't derivable from the
// log.
package index

import (
	stdErrors "errors"

	"github.com/google/btree"
	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
	"github.com/iamNilotpal/strata/pkg/errors"
)

var ErrIndexClosed = stdErrors.New("operation failed: cannot access closed index")

// New creates an empty Index for the given schema.
func New(config *Config) (*Index, error) {
	if config == nil || config.Schema == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "index configuration is required",
		).WithField("config").WithRule("required")
	}

	secondary := make(map[string]*btree.BTree, len(config.Schema.SecondaryKeys))
	state := make(map[string]map[schema.Indexable]secondaryEntry, len(config.Schema.SecondaryKeys))
	for _, sk := range config.Schema.SecondaryKeys {
		secondary[sk] = newSecondaryTree()
		state[sk] = make(map[schema.Indexable]secondaryEntry)
	}

	return &Index{
		log:            config.Logger,
		schema:         config.Schema,
		primary:        newPrimaryTree(),
		secondary:      secondary,
		secondaryState: state,
	}, nil
}

// Close releases the index's memtables.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrIndexClosed
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.primary = nil
	idx.secondary = nil
	idx.secondaryState = nil
	return nil
}

// secondaryValues extracts the indexable value of every secondary field
// present in rec, keyed by field name.
func (idx *Index) secondaryValues(rec codec.Record) map[string]schema.Indexable {
	out := make(map[string]schema.Indexable, len(idx.schema.SecondaryKeys))
	for _, sk := range idx.schema.SecondaryKeys {
		_, pos, ok := idx.schema.FieldByName(sk)
		if !ok || pos >= len(rec.Values) {
			continue
		}
		if v, ok := schema.ValueToIndexable(rec.Values[pos]); ok {
			out[sk] = v
		}
	}
	return out
}

// Apply folds one (LogKey, Record) pair into the memtables: a live record
// is inserted into the primary memtable and every secondary memtable it has
// a value for; a tombstone removes the primary entry and the secondary
// entries this primary key last contributed.
func (idx *Index) Apply(logKey storage.LogKey, rec codec.Record) {
	_, pkPos, ok := idx.schema.FieldByName(idx.schema.PrimaryKey)
	if !ok || pkPos >= len(rec.Values) {
		return
	}
	pk, ok := schema.ValueToIndexable(rec.Values[pkPos])
	if !ok {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if rec.Tombstone {
		idx.primary.Delete(primaryItem{key: pk})
		for field, val := range idx.secondaryValues(rec) {
			if prev, ok := idx.secondaryState[field][pk]; ok {
				removeFromSecondarySet(idx.secondary[field], prev.value, prev.key)
				delete(idx.secondaryState[field], pk)
			} else {
				removeFromSecondarySet(idx.secondary[field], val, logKey)
			}
		}
		return
	}

	idx.primary.ReplaceOrInsert(primaryItem{key: pk, value: logKey})
	for field, val := range idx.secondaryValues(rec) {
		if prev, ok := idx.secondaryState[field][pk]; ok && (prev.value != val || prev.key != logKey) {
			removeFromSecondarySet(idx.secondary[field], prev.value, prev.key)
		}
		addToSecondarySet(idx.secondary[field], val, logKey)
		idx.secondaryState[field][pk] = secondaryEntry{value: val, key: logKey}
	}
}

// Get looks up the primary key's current LogKey.
func (idx *Index) Get(pk schema.Indexable) (storage.LogKey, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	item := idx.primary.Get(primaryItem{key: pk})
	if item == nil {
		return 0, false
	}
	return item.(primaryItem).value, true
}

// FindSecondary looks up every LogKey currently associated with value on
// the given secondary field.
func (idx *Index) FindSecondary(field string, value schema.Indexable) ([]storage.LogKey, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	tree, ok := idx.secondary[field]
	if !ok {
		return nil, false
	}
	item := tree.Get(secondaryItem{key: value})
	if item == nil {
		return nil, false
	}
	return item.(secondaryItem).set.Keys(), true
}

// Bound is one side of a range query: Defined reports whether the bound is
// present at all (an undefined lo/hi means unbounded on that side).
type Bound struct {
	Defined   bool
	Inclusive bool
	Value     schema.Indexable
}

// RangeField returns the LogKeys for field whose values fall within
// [lo, hi] according to each bound's inclusivity, in ascending key order.
// field must be the primary key or a declared secondary key.
func (idx *Index) RangeField(field string, lo, hi Bound) []storage.LogKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var keys []storage.LogKey
	visit := func(value schema.Indexable, add func()) bool {
		if hi.Defined {
			if hi.Inclusive {
				if hi.Value.Less(value) {
					return false
				}
			} else if !value.Less(hi.Value) {
				return false
			}
		}
		if lo.Defined && !lo.Inclusive && !lo.Value.Less(value) && !value.Less(lo.Value) {
			return true // skip the exact lo value, keep iterating
		}
		add()
		return true
	}

	if field == idx.schema.PrimaryKey {
		iter := func(item btree.Item) bool {
			p := item.(primaryItem)
			return visit(p.key, func() { keys = append(keys, p.value) })
		}
		if lo.Defined {
			idx.primary.AscendGreaterOrEqual(primaryItem{key: lo.Value}, iter)
		} else {
			idx.primary.Ascend(iter)
		}
		return keys
	}

	tree, ok := idx.secondary[field]
	if !ok {
		return nil
	}
	iter := func(item btree.Item) bool {
		s := item.(secondaryItem)
		return visit(s.key, func() { keys = append(keys, s.set.Keys()...) })
	}
	if lo.Defined {
		tree.AscendGreaterOrEqual(secondaryItem{key: lo.Value}, iter)
	} else {
		tree.Ascend(iter)
	}
	return keys
}

// Cursor returns the current refresh cursor.
func (idx *Index) Cursor() Cursor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.cursor
}

// SetCursor overwrites the refresh cursor, used after compaction rebuilds a
// segment's indexed entries from scratch.
func (idx *Index) SetCursor(c Cursor) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cursor = c
}

// AdvanceCursor moves the refresh cursor forward to just past (segment,
// lastIndexRead).
func (idx *Index) AdvanceCursor(segment uint16, lastIndexRead uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cursor = Cursor{Segment: segment, Index: lastIndexRead + 1}
}
