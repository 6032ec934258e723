// Package strata provides an embedded, single-node, append-only record
// store with secondary indexing, segment-based compaction, and pluggable
// write durability — inspired by Bitcask, generalized from a pure
// key/value hash table to a schema'd record store with more than one
// indexed field.
//
// A DB owns one data directory. Multiple DB handles, in the same process
// or different ones, may open the same directory concurrently: writes are
// serialized by a writer-priority file-lock protocol, and each handle's
// in-memory indexes are refreshed from the on-disk log independently,
// either explicitly or automatically under strong read consistency.
package strata

import (
	"context"
	"time"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/engine"
	"github.com/iamNilotpal/strata/internal/index"
	"github.com/iamNilotpal/strata/pkg/logger"
	"github.com/iamNilotpal/strata/pkg/options"
)

// Value is a single tagged field value: Null, Int, Float, String, or
// Bytes. Use the Null/Int/Float/String/Bytes constructors to build one.
type Value = codec.Value

// Null, Int, Float, String, and Bytes build the corresponding tagged Value.
var (
	Null   = codec.Null
	Int    = codec.Int
	Float  = codec.Float
	String = codec.String
	Bytes  = codec.Bytes
)

// Record is an ordered sequence of field values matching the schema a DB
// was opened with.
type Record = codec.Record

// TaggedRecord pairs a record returned by BatchFindBy with the index of
// the input value that produced it.
type TaggedRecord = engine.TaggedRecord

// Bound is one side of a RangeBy query. The zero value is unbounded.
type Bound struct {
	Defined   bool
	Inclusive bool
	Value     Value
}

// Unbounded is an unbounded Bound, for either side of a range query.
var Unbounded = Bound{}

// AtLeast builds an inclusive lower bound.
func AtLeast(v Value) Bound { return Bound{Defined: true, Inclusive: true, Value: v} }

// After builds an exclusive lower bound.
func After(v Value) Bound { return Bound{Defined: true, Inclusive: false, Value: v} }

// UpTo builds an inclusive upper bound.
func UpTo(v Value) Bound { return Bound{Defined: true, Inclusive: true, Value: v} }

// Before builds an exclusive upper bound.
func Before(v Value) Bound { return Bound{Defined: true, Inclusive: false, Value: v} }

// DB is the primary entry point for interacting with a strata data
// directory: batch upsert, point/batch/range lookups, delete-by, explicit
// index refresh, and maintenance.
type DB struct {
	eng  *engine.Engine
	opts *options.Options

	stopMaintenance chan struct{}
}

// Open bootstraps or resumes the data directory named by the supplied
// options, returning a DB ready to serve reads and writes. If
// options.CompactInterval is non-zero, a background goroutine calls
// DoMaintenance on that period for the lifetime of the DB, in addition to
// any caller-driven calls.
func Open(ctx context.Context, opts ...options.OptionFunc) (*DB, error) {
	o := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log, err := logger.New(logger.Production, "strata")
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(ctx, &engine.Config{Options: &o, Logger: log})
	if err != nil {
		return nil, err
	}

	db := &DB{eng: eng, opts: &o}
	if o.CompactInterval > 0 {
		db.stopMaintenance = make(chan struct{})
		go db.runMaintenanceTicker(o.CompactInterval)
	}
	return db, nil
}

func (db *DB) runMaintenanceTicker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = db.eng.DoMaintenance()
		case <-db.stopMaintenance:
			return
		}
	}
}

// BatchUpsert validates and appends every record, inserting each into the
// primary memtable and any secondary memtables its fields populate.
func (db *DB) BatchUpsert(ctx context.Context, records []Record) error {
	return db.eng.BatchUpsert(records)
}

// BatchFindBy resolves field=value for every value supplied, returning
// every matching record tagged with the index of the value that produced
// it. field must be the primary key or a declared secondary key.
func (db *DB) BatchFindBy(ctx context.Context, field string, values []Value) ([]TaggedRecord, error) {
	return db.eng.BatchFindBy(field, values)
}

// RangeBy returns every record whose field value falls within [lo, hi]
// according to each bound's inclusivity, in ascending order. field must be
// the primary key or a declared secondary key.
func (db *DB) RangeBy(ctx context.Context, field string, lo, hi Bound) ([]Record, error) {
	loBound, err := db.resolveBound(field, lo)
	if err != nil {
		return nil, err
	}
	hiBound, err := db.resolveBound(field, hi)
	if err != nil {
		return nil, err
	}
	return db.eng.RangeBy(field, loBound, hiBound)
}

func (db *DB) resolveBound(field string, b Bound) (index.Bound, error) {
	if !b.Defined {
		return index.Bound{}, nil
	}
	idxVal, err := db.eng.FieldIndexable(field, b.Value)
	if err != nil {
		return index.Bound{}, err
	}
	return index.Bound{Defined: true, Inclusive: b.Inclusive, Value: idxVal}, nil
}

// DeleteBy finds every record matching field=value, tombstones it via the
// normal write path, and returns the records as they were just before
// deletion.
func (db *DB) DeleteBy(ctx context.Context, field string, value Value) ([]Record, error) {
	return db.eng.DeleteBy(field, value)
}

// RefreshIndexes replays unseen log records into the in-memory indexes.
// Callers running with Eventual read consistency call this explicitly to
// observe writes made by another handle.
func (db *DB) RefreshIndexes(ctx context.Context) error {
	return db.eng.RefreshIndexes()
}

// DoMaintenance rotates and compacts the active segment if it has grown
// past the configured size threshold. Safe to call as often as the caller
// likes; a no-op below the threshold.
func (db *DB) DoMaintenance(ctx context.Context) error {
	return db.eng.DoMaintenance()
}

// Close stops the background maintenance ticker, if any, and shuts down
// the underlying engine, flushing and closing its segment files.
func (db *DB) Close() error {
	if db.stopMaintenance != nil {
		close(db.stopMaintenance)
	}
	return db.eng.Close()
}
