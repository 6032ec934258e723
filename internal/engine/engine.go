// Package engine provides the core database engine implementation for the
// strata storage system.
//
// The engine serves as the central coordinator and entry point for all
// database operations. It orchestrates the interaction between three main
// subsystems:
//   - Index: Manages in-memory data structures for fast key lookups and
//     range queries
//   - Storage: Handles persistent data storage, including segment files and
//     the writer-priority lock protocol
//   - Compaction: Performs background maintenance to optimize storage
//     efficiency and performance
//
// The engine implements a thread-safe interface with proper lifecycle
// management, ensuring resources are properly initialized and cleaned up.
// It uses atomic operations for state management to provide consistent
// behavior across concurrent operations.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/compaction"
	"github.com/iamNilotpal/strata/internal/index"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
	pkgerrors "github.com/iamNilotpal/strata/pkg/errors"
	"github.com/iamNilotpal/strata/pkg/options"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
var ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

// TaggedRecord pairs a record with the index of the input value that
// matched it, for batch lookups where one call covers many values.
type TaggedRecord struct {
	Tag    int
	Record codec.Record
}

// Engine represents the main database engine that coordinates all
// subsystems. It acts as the primary interface for database operations and
// manages the lifecycle of all internal components.
type Engine struct {
	options    *options.Options       // options contains all configuration parameters for the engine and its subsystems.
	log        *zap.SugaredLogger     // log provides structured logging capabilities throughout the engine.
	closed     atomic.Bool            // closed is an atomic boolean that tracks the engine's lifecycle state.
	schema     *schema.Schema         // schema is the record shape this engine enforces.
	index      *index.Index           // index manages the in-memory data structures for fast data access.
	storage    *storage.Storage       // storage handles all persistent data operations.
	compaction *compaction.Compaction // compaction manages the rotate-and-compact procedure.
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided
// configuration. Subsystems are built in dependency order: storage first,
// since index and compaction both need a live storage handle to read
// segments from; then index, validated against whatever the log already
// holds; then compaction, wrapping both.
func New(ctx context.Context, config *Config) (*Engine, error) {
	if config == nil || config.Options == nil || config.Options.Schema == nil || config.Logger == nil {
		return nil, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "engine configuration is required",
		).WithField("config").WithRule("required")
	}
	sch := config.Options.Schema

	store, err := storage.Open(ctx, &storage.Config{Options: config.Options, Logger: config.Logger})
	if err != nil {
		return nil, err
	}

	idx, err := index.New(&index.Config{Schema: sch, Logger: config.Logger})
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := validateSchemaAgainstLog(store, sch); err != nil {
		store.Close()
		return nil, err
	}
	if err := idx.Refresh(store); err != nil {
		store.Close()
		return nil, err
	}

	comp, err := compaction.New(&compaction.Config{Schema: sch, Storage: store, Index: idx, Logger: config.Logger})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Engine{
		options:    config.Options,
		log:        config.Logger,
		schema:     sch,
		index:      idx,
		storage:    store,
		compaction: comp,
	}, nil
}

// validateSchemaAgainstLog implements schema validation on open: segment
// 1's first record establishes the on-disk value count, and any field
// appended beyond that prefix by the new schema must be nullable.
func validateSchemaAgainstLog(store *storage.Storage, sch *schema.Schema) error {
	handle, err := store.OpenSegmentShared(1)
	if err != nil {
		return err
	}
	defer handle.Close()

	reader, err := storage.NewForwardReader(1, handle.MetaFile, handle.DataFile, handle.MetaPath, handle.DataPath, 0)
	if err != nil {
		return err
	}

	item, err := reader.Next()
	if err != nil {
		return err
	}
	if item == nil {
		return nil // empty log, nothing to validate against
	}

	return sch.ValidateEvolution(item.Record)
}

// Close gracefully shuts down the engine and releases all associated
// resources.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	indexErr := e.index.Close()
	storageErr := e.storage.Close()
	if storageErr != nil {
		return storageErr
	}
	return indexErr
}

// FieldIndexable validates value against field's declared type and
// converts it to the comparable key representation a range query's Bound
// needs. Exported for pkg/strata, which builds Bounds from caller-supplied
// Values before calling RangeBy.
func (e *Engine) FieldIndexable(field string, value codec.Value) (schema.Indexable, error) {
	return e.fieldIndexable(field, value)
}

// fieldIndexable validates value against field's declared type and
// converts it to the comparable key representation memtables use.
func (e *Engine) fieldIndexable(field string, value codec.Value) (schema.Indexable, error) {
	f, _, ok := e.schema.FieldByName(field)
	if !ok {
		return schema.Indexable{}, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "field is not declared in schema",
		).WithField(field).WithRule("declared")
	}
	if !e.schema.IsKeyField(field) {
		return schema.Indexable{}, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "field has no memtable",
		).WithField(field).WithRule("indexed")
	}
	if value.Kind != f.Type {
		return schema.Indexable{}, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "value type does not match field type",
		).WithField(field).WithRule("type").WithProvided(value.Kind.String()).WithExpected(f.Type.String())
	}
	idxVal, ok := schema.ValueToIndexable(value)
	if !ok {
		return schema.Indexable{}, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "value is not indexable",
		).WithField(field).WithRule("indexable")
	}
	return idxVal, nil
}

// maybeRefresh refreshes the index before a read when the engine is
// configured for strong read consistency.
func (e *Engine) maybeRefresh() error {
	if e.options.ReadConsistency != options.Strong {
		return nil
	}
	return e.index.Refresh(e.storage)
}

// BatchUpsert validates and appends every record, then folds each into
// the memtables under its assigned LogKey.
func (e *Engine) BatchUpsert(records []codec.Record) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	for _, rec := range records {
		if err := e.schema.ValidateRecord(rec); err != nil {
			return pkgerrors.NewValidationError(err, pkgerrors.ErrorCodeInvalidInput, "record does not match schema")
		}
	}

	keys, err := e.storage.AppendBatch(records)
	if err != nil {
		return err
	}
	for i, key := range keys {
		e.index.Apply(key, records[i])
	}
	return nil
}

// BatchFindBy resolves field=value for every value in values, returning
// every matching record tagged with the zero-based index of the value
// that produced it.
func (e *Engine) BatchFindBy(field string, values []codec.Value) ([]TaggedRecord, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if err := e.maybeRefresh(); err != nil {
		return nil, err
	}

	var out []TaggedRecord
	for tag, value := range values {
		idxVal, err := e.fieldIndexable(field, value)
		if err != nil {
			return nil, err
		}

		var keys []storage.LogKey
		if field == e.schema.PrimaryKey {
			if k, ok := e.index.Get(idxVal); ok {
				keys = []storage.LogKey{k}
			}
		} else {
			keys, _ = e.index.FindSecondary(field, idxVal)
		}

		recs, err := e.materialize(keys)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			out = append(out, TaggedRecord{Tag: tag, Record: r})
		}
	}
	return out, nil
}

// RangeBy queries field's memtable for [lo, hi] and materializes every
// matching record.
func (e *Engine) RangeBy(field string, lo, hi index.Bound) ([]codec.Record, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if !e.schema.IsKeyField(field) {
		return nil, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "field has no memtable",
		).WithField(field).WithRule("indexed")
	}
	if err := e.maybeRefresh(); err != nil {
		return nil, err
	}

	keys := e.index.RangeField(field, lo, hi)
	return e.materialize(keys)
}

// DeleteBy finds every record matching field=value, appends a tombstoned
// copy of each via the normal write path, and removes the now-superseded
// entries from the memtables directly — per the delete procedure, the
// tombstone write's own LogKey is never inserted.
func (e *Engine) DeleteBy(field string, value codec.Value) ([]codec.Record, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	idxVal, err := e.fieldIndexable(field, value)
	if err != nil {
		return nil, err
	}
	if err := e.maybeRefresh(); err != nil {
		return nil, err
	}

	var keys []storage.LogKey
	if field == e.schema.PrimaryKey {
		if k, ok := e.index.Get(idxVal); ok {
			keys = []storage.LogKey{k}
		}
	} else {
		keys, _ = e.index.FindSecondary(field, idxVal)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	recs, err := e.materialize(keys)
	if err != nil {
		return nil, err
	}

	tombstones := make([]codec.Record, len(recs))
	for i, r := range recs {
		tombstones[i] = codec.Record{Tombstone: true, Values: r.Values}
	}
	if _, err := e.storage.AppendBatch(tombstones); err != nil {
		return nil, err
	}
	for i, r := range recs {
		e.index.Apply(keys[i], codec.Record{Tombstone: true, Values: r.Values})
	}

	return recs, nil
}

// RefreshIndexes replays unseen log records into the memtables. Callers
// using Eventual consistency invoke this explicitly when they want to
// observe another process's writes.
func (e *Engine) RefreshIndexes() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.index.Refresh(e.storage)
}

// DoMaintenance rotates and compacts the active segment if it has reached
// the configured size threshold.
func (e *Engine) DoMaintenance() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if !e.compaction.Due() {
		return nil
	}
	return e.compaction.Run()
}

// materialize buckets keys by segment, sorts within a bucket by index, and
// reads each record under that segment's shared lock using the forward
// reader's relative seeks.
func (e *Engine) materialize(keys []storage.LogKey) ([]codec.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	bySegment := make(map[uint16][]storage.LogKey)
	for _, k := range keys {
		bySegment[k.Segment()] = append(bySegment[k.Segment()], k)
	}

	segments := make([]uint16, 0, len(bySegment))
	for seg := range bySegment {
		segments = append(segments, seg)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i] < segments[j] })

	byKey := make(map[storage.LogKey]codec.Record, len(keys))
	for _, seg := range segments {
		segKeys := bySegment[seg]
		sort.Slice(segKeys, func(i, j int) bool { return segKeys[i].Index() < segKeys[j].Index() })

		recs, err := e.readSegmentIndices(seg, segKeys)
		if err != nil {
			return nil, err
		}
		for i, k := range segKeys {
			byKey[k] = recs[i]
		}
	}

	out := make([]codec.Record, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out, nil
}

// readSegmentIndices opens seg once under a shared lock and reads the
// record at each of indices, in ascending order, using the forward
// reader's buffered relative seeks rather than one open/close per record.
func (e *Engine) readSegmentIndices(seg uint16, indices []storage.LogKey) ([]codec.Record, error) {
	handle, err := e.storage.OpenSegmentShared(seg)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	out := make([]codec.Record, len(indices))
	pos := 0
	startIdx := indices[0].Index()

	reader, err := storage.NewForwardReader(seg, handle.MetaFile, handle.DataFile, handle.MetaPath, handle.DataPath, startIdx)
	if err != nil {
		return nil, err
	}

	for pos < len(indices) {
		item, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if item == nil {
			break
		}
		if item.Index == indices[pos].Index() {
			out[pos] = item.Record
			pos++
		}
	}

	return out, nil
}
