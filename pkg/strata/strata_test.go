package strata

import (
	"context"
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/pkg/options"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *schema.Schema {
	sch, err := schema.New([]schema.Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
	}, "id", []string{"name"})
	require.NoError(t, err)
	return sch
}

func TestOpenBatchUpsertAndFind(t *testing.T) {
	dir := t.TempDir()
	sch := testSchema(t)

	db, err := Open(context.Background(),
		options.WithDataDir(dir),
		options.WithSchema(sch),
		options.WithSegmentSize(options.MinSegmentSize),
		options.WithReadConsistency(options.Strong),
	)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.BatchUpsert(context.Background(), []Record{
		{Values: []Value{Int(1), String("Alice")}},
	}))

	recs, err := db.BatchFindBy(context.Background(), "id", []Value{Int(1)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Alice", recs[0].Record.Values[1].Str)
}

func TestRangeByUnboundedSides(t *testing.T) {
	dir := t.TempDir()
	sch, err := schema.New([]schema.Field{{Name: "id", Type: codec.KindInt}}, "id", nil)
	require.NoError(t, err)

	db, err := Open(context.Background(),
		options.WithDataDir(dir),
		options.WithSchema(sch),
		options.WithSegmentSize(options.MinSegmentSize),
	)
	require.NoError(t, err)
	defer db.Close()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, db.BatchUpsert(context.Background(), []Record{{Values: []Value{Int(i)}}}))
	}

	recs, err := db.RangeBy(context.Background(), "id", AtLeast(Int(2)), Unbounded)
	require.NoError(t, err)
	require.Len(t, recs, 3)
}

func TestDeleteByThenFindEmpty(t *testing.T) {
	dir := t.TempDir()
	sch := testSchema(t)

	db, err := Open(context.Background(), options.WithDataDir(dir), options.WithSchema(sch))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.BatchUpsert(context.Background(), []Record{
		{Values: []Value{Int(1), String("Alice")}},
	}))
	deleted, err := db.DeleteBy(context.Background(), "id", Int(1))
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	recs, err := db.BatchFindBy(context.Background(), "id", []Value{Int(1)})
	require.NoError(t, err)
	require.Empty(t, recs)
}
