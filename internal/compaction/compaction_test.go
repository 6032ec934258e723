package compaction

import (
	"context"
	"os"
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/index"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
	"github.com/iamNilotpal/strata/pkg/logger"
	"github.com/iamNilotpal/strata/pkg/options"
	"github.com/iamNilotpal/strata/pkg/seginfo"
	"github.com/stretchr/testify/require"
)

func newTestCompaction(t *testing.T, segmentSize uint64) (*Compaction, *storage.Storage, *index.Index, *schema.Schema) {
	t.Helper()
	sch, err := schema.New([]schema.Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
	}, "id", []string{"name"})
	require.NoError(t, err)

	opts := &options.Options{
		DataDir:     t.TempDir(),
		Schema:      sch,
		SegmentSize: segmentSize,
	}

	store, err := storage.Open(context.Background(), &storage.Config{Options: opts, Logger: logger.Noop()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	idx, err := index.New(&index.Config{Schema: sch, Logger: logger.Noop()})
	require.NoError(t, err)

	c, err := New(&Config{Schema: sch, Storage: store, Index: idx, Logger: logger.Noop()})
	require.NoError(t, err)
	return c, store, idx, sch
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
}

// metaRowsThreshold returns the metadata-file size (24-byte header +
// 16 bytes/row, per internal/storage/segment.go) for exactly n rows, the
// unit ShouldRotate actually compares against.
func metaRowsThreshold(n uint64) uint64 {
	const headerSize, rowSize = 24, 16
	return headerSize + rowSize*n
}

func TestDueFollowsStorageThreshold(t *testing.T) {
	c, store, _, _ := newTestCompaction(t, metaRowsThreshold(2))

	require.False(t, c.Due())

	_, err := store.AppendBatch([]codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("x")}},
		{Values: []codec.Value{codec.Int(2), codec.String("x")}},
	})
	require.NoError(t, err)
	require.True(t, c.Due())
}

// Run rewrites the active segment in place with its last-write-wins
// contents, rotates to a new active segment, and leaves the index able to
// find every surviving key by its post-compaction LogKey.
func TestRunCompactsAndRebuildsIndex(t *testing.T) {
	c, store, idx, _ := newTestCompaction(t, metaRowsThreshold(3))

	_, err := store.AppendBatch([]codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("x")}},
	})
	require.NoError(t, err)
	_, err = store.AppendBatch([]codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("y")}},
	})
	require.NoError(t, err)
	_, err = store.AppendBatch([]codec.Record{
		{Values: []codec.Value{codec.Int(2), codec.String("z")}},
	})
	require.NoError(t, err)

	require.True(t, c.Due())
	require.NoError(t, c.Run())
	require.False(t, c.Due())

	dir := store.DataDir()
	_, err = os.Stat(seginfo.MetadataPath(dir, 1))
	require.NoError(t, err)

	require.NoError(t, idx.Refresh(store))
	_, ok := idx.Get(schema.Indexable{Kind: schema.IndexableInt, Int: 1})
	require.True(t, ok)
}
