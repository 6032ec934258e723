package engine

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/index"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/pkg/logger"
	"github.com/iamNilotpal/strata/pkg/options"
	"github.com/iamNilotpal/strata/pkg/seginfo"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, sch *schema.Schema, segmentSize uint64) *Engine {
	return newTestEngineInDir(t, t.TempDir(), sch, segmentSize)
}

func newTestEngineInDir(t *testing.T, dir string, sch *schema.Schema, segmentSize uint64) *Engine {
	t.Helper()
	opts := options.Options{
		DataDir:         dir,
		Schema:          sch,
		SegmentSize:     segmentSize,
		WriteDurability: options.DurabilityFlushSync,
		ReadConsistency: options.Strong,
	}
	if opts.SegmentSize == 0 {
		opts.SegmentSize = options.MinSegmentSize
	}
	eng, err := New(context.Background(), &Config{Options: &opts, Logger: logger.Noop()})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func s1Schema(t *testing.T) *schema.Schema {
	sch, err := schema.New([]schema.Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
		{Name: "data", Type: codec.KindBytes},
	}, "id", []string{"name"})
	require.NoError(t, err)
	return sch
}

// S1: last write for a primary key wins.
func TestBatchUpsertLastWriteWins(t *testing.T) {
	sch := s1Schema(t)
	eng := newTestEngine(t, sch, 0)

	require.NoError(t, eng.BatchUpsert([]codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("Alice"), codec.Bytes([]byte{0, 1, 2})}},
	}))
	require.NoError(t, eng.BatchUpsert([]codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("Bob"), codec.Bytes([]byte{0, 1, 2})}},
	}))

	recs, err := eng.BatchFindBy("id", []codec.Value{codec.Int(1)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Bob", recs[0].Record.Values[1].Str)
}

// S2: secondary-field find returns every matching primary key.
func TestBatchFindBySecondaryField(t *testing.T) {
	sch := s1Schema(t)
	eng := newTestEngine(t, sch, 0)

	require.NoError(t, eng.BatchUpsert([]codec.Record{
		{Values: []codec.Value{codec.Int(0), codec.String("John"), codec.Bytes([]byte{3, 4, 5})}},
		{Values: []codec.Value{codec.Int(1), codec.String("John"), codec.Bytes([]byte{1, 2, 3})}},
		{Values: []codec.Value{codec.Int(2), codec.String("George"), codec.Bytes(nil)}},
	}))

	recs, err := eng.BatchFindBy("name", []codec.Value{codec.String("John")})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	ids := map[int64]bool{}
	for _, r := range recs {
		ids[r.Record.Values[0].Int] = true
	}
	require.Equal(t, map[int64]bool{0: true, 1: true}, ids)
}

// S3: 100 goroutines upserting disjoint ids are all observed afterward.
func TestBatchUpsertConcurrentDisjointKeys(t *testing.T) {
	sch, err := schema.New([]schema.Field{{Name: "id", Type: codec.KindInt}}, "id", nil)
	require.NoError(t, err)
	eng := newTestEngine(t, sch, 0)

	var wg sync.WaitGroup
	for i := int64(0); i < 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			err := eng.BatchUpsert([]codec.Record{{Values: []codec.Value{codec.Int(id)}}})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, eng.RefreshIndexes())
	values := make([]codec.Value, 100)
	for i := range values {
		values[i] = codec.Int(int64(i))
	}
	recs, err := eng.BatchFindBy("id", values)
	require.NoError(t, err)
	require.Len(t, recs, 100)
}

// S4: maintenance after every upsert keeps exactly two metadata files once
// the threshold is crossed once. Writes 15 records against a threshold
// calibrated to exactly 10 metadata rows (24-byte header + 16 bytes/row,
// per internal/storage/segment.go) rather than the 25 named in the
// scenario: the 10th write triggers the first rotation and segment 2
// reaches the threshold again at the 20th, so any count up to 19 exercises
// exactly one rotation; 15 sits safely inside that range.
func TestDoMaintenanceRotatesAtThreshold(t *testing.T) {
	sch := s1Schema(t)
	const headerSize, rowSize = 24, 16
	segSize := uint64(headerSize + rowSize*10)
	dir := t.TempDir()

	eng := newTestEngineInDir(t, dir, sch, segSize)
	for i := 0; i < 15; i++ {
		require.NoError(t, eng.BatchUpsert([]codec.Record{
			{Values: []codec.Value{codec.Int(int64(i)), codec.String("x"), codec.Bytes([]byte{1, 2, 3})}},
		}))
		require.NoError(t, eng.DoMaintenance())
	}

	_, err := os.Stat(seginfo.MetadataPath(dir, 1))
	require.NoError(t, err)
	_, err = os.Stat(seginfo.MetadataPath(dir, 2))
	require.NoError(t, err)
	_, err = os.Stat(seginfo.MetadataPath(dir, 3))
	require.True(t, os.IsNotExist(err))
}

// S5: schema evolution that turns a previously-nullable-by-absence field
// non-nullable must fail validation on reopen.
func TestSchemaEvolutionRejectsNonNullableAppend(t *testing.T) {
	dir := t.TempDir()
	narrow, err := schema.New([]schema.Field{{Name: "id", Type: codec.KindInt}}, "id", nil)
	require.NoError(t, err)

	opts := options.Options{DataDir: dir, Schema: narrow, SegmentSize: options.MinSegmentSize}
	eng, err := New(context.Background(), &Config{Options: &opts, Logger: logger.Noop()})
	require.NoError(t, err)
	require.NoError(t, eng.BatchUpsert([]codec.Record{{Values: []codec.Value{codec.Int(1)}}}))
	require.NoError(t, eng.Close())

	wide, err := schema.New([]schema.Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
		{Name: "data", Type: codec.KindBytes, Nullable: false},
	}, "id", nil)
	require.NoError(t, err)

	opts2 := options.Options{DataDir: dir, Schema: wide, SegmentSize: options.MinSegmentSize}
	_, err = New(context.Background(), &Config{Options: &opts2, Logger: logger.Noop()})
	require.Error(t, err)
}

// S6: range queries honor inclusive/exclusive bounds on both ends.
func TestRangeByBounds(t *testing.T) {
	sch, err := schema.New([]schema.Field{{Name: "id", Type: codec.KindInt}}, "id", nil)
	require.NoError(t, err)
	eng := newTestEngine(t, sch, 0)

	for i := int64(0); i < 10; i++ {
		require.NoError(t, eng.BatchUpsert([]codec.Record{{Values: []codec.Value{codec.Int(i)}}}))
	}

	ids := func(recs []codec.Record) []int64 {
		out := make([]int64, len(recs))
		for i, r := range recs {
			out[i] = r.Values[0].Int
		}
		return out
	}

	lo := index.Bound{Defined: true, Inclusive: true, Value: schema.Indexable{Kind: schema.IndexableInt, Int: 3}}
	hiExcl := index.Bound{Defined: true, Inclusive: false, Value: schema.Indexable{Kind: schema.IndexableInt, Int: 7}}
	hiIncl := index.Bound{Defined: true, Inclusive: true, Value: schema.Indexable{Kind: schema.IndexableInt, Int: 7}}

	recs, err := eng.RangeBy("id", lo, hiExcl)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 4, 5, 6}, ids(recs))

	recs, err = eng.RangeBy("id", lo, hiIncl)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 4, 5, 6, 7}, ids(recs))

	recs, err = eng.RangeBy("id", index.Bound{}, hiIncl)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7}, ids(recs))

	recs, err = eng.RangeBy("id", lo, index.Bound{})
	require.NoError(t, err)
	require.Equal(t, []int64{3, 4, 5, 6, 7, 8, 9}, ids(recs))
}

// Property 8: delete-by removes the deleted value but leaves disjoint
// values unaffected.
func TestDeleteByRemovesOnlyMatchingValue(t *testing.T) {
	sch := s1Schema(t)
	eng := newTestEngine(t, sch, 0)

	require.NoError(t, eng.BatchUpsert([]codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("Alice"), codec.Bytes(nil)}},
		{Values: []codec.Value{codec.Int(2), codec.String("Bob"), codec.Bytes(nil)}},
	}))

	deleted, err := eng.DeleteBy("name", codec.String("Alice"))
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	recs, err := eng.BatchFindBy("name", []codec.Value{codec.String("Alice")})
	require.NoError(t, err)
	require.Empty(t, recs)

	recs, err = eng.BatchFindBy("name", []codec.Value{codec.String("Bob")})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestOperationsFailAfterClose(t *testing.T) {
	sch, err := schema.New([]schema.Field{{Name: "id", Type: codec.KindInt}}, "id", nil)
	require.NoError(t, err)
	eng := newTestEngine(t, sch, 0)
	require.NoError(t, eng.Close())

	err = eng.BatchUpsert([]codec.Record{{Values: []codec.Value{codec.Int(1)}}})
	require.ErrorIs(t, err, ErrEngineClosed)
}
