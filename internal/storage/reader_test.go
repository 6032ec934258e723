package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/stretchr/testify/require"
)

func writeTestRecords(t *testing.T, dir string, num uint16, records []codec.Record) {
	t.Helper()
	seg, err := createSegment(dir, num)
	require.NoError(t, err)

	for _, rec := range records {
		buf := rec.Serialize()
		offset, err := seg.appendData(buf)
		require.NoError(t, err)
		_, err = seg.appendMetaRow(uint64(offset), uint64(len(buf)))
		require.NoError(t, err)
	}

	require.NoError(t, seg.flush(true, true))
	require.NoError(t, seg.close())
}

func TestForwardReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := []codec.Record{
		{Values: []codec.Value{codec.Int(1), codec.String("a")}},
		{Values: []codec.Value{codec.Int(2), codec.String("bb")}},
		{Tombstone: true, Values: []codec.Value{codec.Int(3), codec.Null()}},
	}
	writeTestRecords(t, dir, 1, records)

	metaFile, err := os.OpenFile(filepath.Join(dir, "metadata.1"), os.O_RDWR, 0644)
	require.NoError(t, err)
	defer metaFile.Close()

	dataName, err := readHeader(1, metaFile, filepath.Join(dir, "metadata.1"))
	require.NoError(t, err)
	dataFile, err := os.OpenFile(filepath.Join(dir, dataName.String()), os.O_RDWR, 0644)
	require.NoError(t, err)
	defer dataFile.Close()

	reader, err := NewForwardReader(1, metaFile, dataFile, "metadata.1", dataName.String(), 0)
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

	require.Len(t, got, 3)
	for i, rec := range records {
		require.Equal(t, rec.Tombstone, got[i].Tombstone)
		require.Len(t, got[i].Values, len(rec.Values))
		for j, v := range rec.Values {
			require.True(t, v.Equal(got[i].Values[j]))
		}
	}
}

func TestForwardReaderStartIndex(t *testing.T) {
	dir := t.TempDir()
	records := []codec.Record{
		{Values: []codec.Value{codec.Int(1)}},
		{Values: []codec.Value{codec.Int(2)}},
		{Values: []codec.Value{codec.Int(3)}},
	}
	writeTestRecords(t, dir, 1, records)

	metaFile, err := os.OpenFile(filepath.Join(dir, "metadata.1"), os.O_RDWR, 0644)
	require.NoError(t, err)
	defer metaFile.Close()

	dataName, err := readHeader(1, metaFile, filepath.Join(dir, "metadata.1"))
	require.NoError(t, err)
	dataFile, err := os.OpenFile(filepath.Join(dir, dataName.String()), os.O_RDWR, 0644)
	require.NoError(t, err)
	defer dataFile.Close()

	reader, err := NewForwardReader(1, metaFile, dataFile, "metadata.1", dataName.String(), 1)
	require.NoError(t, err)

	item, err := reader.Next()
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, uint64(1), item.Index)
	require.True(t, codec.Int(2).Equal(item.Record.Values[0]))

	item, err = reader.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(2), item.Index)

	item, err = reader.Next()
	require.NoError(t, err)
	require.Nil(t, item)
}

func TestForwardReaderTruncatedRow(t *testing.T) {
	dir := t.TempDir()
	writeTestRecords(t, dir, 1, []codec.Record{
		{Values: []codec.Value{codec.Int(1)}},
	})

	metaPath := filepath.Join(dir, "metadata.1")
	info, err := os.Stat(metaPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(metaPath, info.Size()-4))

	metaFile, err := os.OpenFile(metaPath, os.O_RDWR, 0644)
	require.NoError(t, err)
	defer metaFile.Close()

	dataName, err := readHeader(1, metaFile, metaPath)
	require.NoError(t, err)
	dataFile, err := os.OpenFile(filepath.Join(dir, dataName.String()), os.O_RDWR, 0644)
	require.NoError(t, err)
	defer dataFile.Close()

	reader, err := NewForwardReader(1, metaFile, dataFile, metaPath, dataName.String(), 0)
	require.NoError(t, err)

	_, err = reader.Next()
	require.Error(t, err)
}
