package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/pkg/logger"
	"github.com/iamNilotpal/strata/pkg/options"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, dir string) *Storage {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = dir
	s, err := Open(context.Background(), &Config{Options: &opts, Logger: logger.Noop()})
	require.NoError(t, err)
	return s
}

func TestOpenBootstrapsSegmentOne(t *testing.T) {
	dir := t.TempDir()
	s := newTestStorage(t, dir)
	defer s.Close()

	require.Equal(t, uint16(1), s.activeNum)

	target, err := os.Readlink(filepath.Join(dir, "active"))
	require.NoError(t, err)
	require.Equal(t, "metadata.1", target)
}

func TestAppendBatchAssignsSequentialLogKeys(t *testing.T) {
	dir := t.TempDir()
	s := newTestStorage(t, dir)
	defer s.Close()

	recs := []codec.Record{
		{Values: []codec.Value{codec.Int(1)}},
		{Values: []codec.Value{codec.Int(2)}},
	}
	keys, err := s.AppendBatch(recs)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, uint16(1), keys[0].Segment())
	require.Equal(t, uint64(0), keys[0].Index())
	require.Equal(t, uint64(1), keys[1].Index())
}

func TestRotateAndCompactDropsTombstonesAndKeepsLastWrite(t *testing.T) {
	dir := t.TempDir()
	s := newTestStorage(t, dir)
	defer s.Close()

	sch, err := schema.New([]schema.Field{{Name: "id", Type: codec.KindInt}}, "id", nil)
	require.NoError(t, err)

	_, err = s.AppendBatch([]codec.Record{
		{Values: []codec.Value{codec.Int(1)}},
		{Values: []codec.Value{codec.Int(2)}},
		{Tombstone: true, Values: []codec.Value{codec.Int(1)}},
		{Values: []codec.Value{codec.Int(2)}},
	})
	require.NoError(t, err)

	compacted, err := s.RotateAndCompact(sch)
	require.NoError(t, err)
	require.Equal(t, uint16(1), compacted)
	require.Equal(t, uint16(2), s.activeNum)

	handle, err := s.OpenSegmentShared(1)
	require.NoError(t, err)
	defer handle.Close()

	reader, err := NewForwardReader(1, handle.MetaFile, handle.DataFile, handle.MetaPath, handle.DataPath, 0)
	require.NoError(t, err)

	var got []codec.Record
	for {
		item, err := reader.Next()
		require.NoError(t, err)
		if item == nil {
			break
		}
		got = append(got, item.Record)
	}

	require.Len(t, got, 1)
	require.True(t, codec.Int(2).Equal(got[0].Values[0]))
}
