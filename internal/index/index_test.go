package index

import (
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
	"github.com/iamNilotpal/strata/pkg/logger"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*Index, *schema.Schema) {
	t.Helper()
	sch, err := schema.New([]schema.Field{
		{Name: "id", Type: codec.KindInt},
		{Name: "name", Type: codec.KindString, Nullable: true},
	}, "id", []string{"name"})
	require.NoError(t, err)

	idx, err := New(&Config{Schema: sch, Logger: logger.Noop()})
	require.NoError(t, err)
	return idx, sch
}

func logKey(t *testing.T, seg uint16, i uint64) storage.LogKey {
	t.Helper()
	k, err := storage.NewLogKey(seg, i)
	require.NoError(t, err)
	return k
}

func TestApplyUpsertLastWriteWins(t *testing.T) {
	idx, _ := newTestIndex(t)

	idx.Apply(logKey(t, 1, 0), codec.Record{Values: []codec.Value{codec.Int(1), codec.String("Alice")}})
	idx.Apply(logKey(t, 1, 1), codec.Record{Values: []codec.Value{codec.Int(1), codec.String("Bob")}})

	got, ok := idx.Get(schema.Indexable{Kind: schema.IndexableInt, Int: 1})
	require.True(t, ok)
	require.Equal(t, logKey(t, 1, 1), got)

	keys, ok := idx.FindSecondary("name", schema.Indexable{Kind: schema.IndexableString, Str: "Bob"})
	require.True(t, ok)
	require.Equal(t, []storage.LogKey{logKey(t, 1, 1)}, keys)

	_, ok = idx.FindSecondary("name", schema.Indexable{Kind: schema.IndexableString, Str: "Alice"})
	require.False(t, ok, "stale secondary value must be dropped when the primary key's value changes")
}

func TestApplyTombstoneRemovesEntries(t *testing.T) {
	idx, _ := newTestIndex(t)
	idx.Apply(logKey(t, 1, 0), codec.Record{Values: []codec.Value{codec.Int(2), codec.String("John")}})
	idx.Apply(logKey(t, 1, 1), codec.Record{Tombstone: true, Values: []codec.Value{codec.Int(2), codec.String("John")}})

	_, ok := idx.Get(schema.Indexable{Kind: schema.IndexableInt, Int: 2})
	require.False(t, ok)

	_, ok = idx.FindSecondary("name", schema.Indexable{Kind: schema.IndexableString, Str: "John"})
	require.False(t, ok)
}

func TestRangeFieldBounds(t *testing.T) {
	idx, _ := newTestIndex(t)
	for i := int64(0); i < 10; i++ {
		idx.Apply(logKey(t, 1, uint64(i)), codec.Record{Values: []codec.Value{codec.Int(i), codec.Null()}})
	}

	toInts := func(keys []storage.LogKey) []uint64 {
		out := make([]uint64, len(keys))
		for i, k := range keys {
			out[i] = k.Index()
		}
		return out
	}

	half := schema.Indexable{Kind: schema.IndexableInt, Int: 3}
	sevenExcl := schema.Indexable{Kind: schema.IndexableInt, Int: 7}

	keys := idx.RangeField("id", Bound{Defined: true, Inclusive: true, Value: half}, Bound{Defined: true, Inclusive: false, Value: sevenExcl})
	require.Equal(t, []uint64{3, 4, 5, 6}, toInts(keys))

	keys = idx.RangeField("id", Bound{Defined: true, Inclusive: true, Value: half}, Bound{Defined: true, Inclusive: true, Value: sevenExcl})
	require.Equal(t, []uint64{3, 4, 5, 6, 7}, toInts(keys))

	keys = idx.RangeField("id", Bound{}, Bound{Defined: true, Inclusive: true, Value: sevenExcl})
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, toInts(keys))

	keys = idx.RangeField("id", Bound{Defined: true, Inclusive: true, Value: half}, Bound{})
	require.Equal(t, []uint64{3, 4, 5, 6, 7, 8, 9}, toInts(keys))
}
