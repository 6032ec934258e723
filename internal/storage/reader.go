package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/pkg/errors"
)

// ForwardReader iterates a segment's records in order starting from a
// given metadata row index. It positions the metadata reader at
// `24 + 16*startIndex` and the data reader at byte 0, then advances the
// data reader with relative discards (never an absolute seek) so that
// monotonically increasing offsets never throw away buffered bytes.
type ForwardReader struct {
	segmentNum uint16
	metaPath   string
	dataPath   string

	metaReader *bufio.Reader
	dataReader *bufio.Reader

	dataPos   int64
	nextIndex uint64
}

// ForwardReaderItem is one record yielded by a ForwardReader, together
// with its position in the segment.
type ForwardReaderItem struct {
	Index  uint64
	Offset uint64
	Length uint64
	Record codec.Record
}

// NewForwardReader builds a reader over metaFile/dataFile starting at
// startIndex. It seeks both files; callers should not reuse these handles
// for anything else while the reader is live.
func NewForwardReader(segmentNum uint16, metaFile, dataFile *os.File, metaPath, dataPath string, startIndex uint64) (*ForwardReader, error) {
	seekPos := int64(headerSize) + int64(startIndex)*rowSize
	if _, err := metaFile.Seek(seekPos, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := dataFile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return &ForwardReader{
		segmentNum: segmentNum,
		metaPath:   metaPath,
		dataPath:   dataPath,
		metaReader: bufio.NewReader(metaFile),
		dataReader: bufio.NewReader(dataFile),
		dataPos:    0,
		nextIndex:  startIndex,
	}, nil
}

// Next returns the next record, or (nil, nil) at a clean end-of-stream
// (EOF exactly on a metadata row boundary). A partial row or a partial
// data read is reported as a *errors.ConsistencyError.
func (r *ForwardReader) Next() (*ForwardReaderItem, error) {
	var row [rowSize]byte
	n, err := io.ReadFull(r.metaReader, row[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, nil
		}
		return nil, errors.NewTruncatedRecordError(r.segmentNum, r.metaPath, int64(headerSize)+int64(r.nextIndex)*rowSize, err)
	}

	offset := binary.BigEndian.Uint64(row[0:8])
	length := binary.BigEndian.Uint64(row[8:16])

	if err := r.seekDataTo(int64(offset)); err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r.dataReader, buf); err != nil {
		return nil, errors.NewTruncatedRecordError(r.segmentNum, r.dataPath, int64(offset), err)
	}
	r.dataPos += int64(length)

	rec, err := codec.Deserialize(buf)
	if err != nil {
		if err == codec.ErrUnknownTag {
			return nil, errors.NewUnknownValueTagError(r.segmentNum, int64(offset), buf[0])
		}
		return nil, errors.NewTruncatedRecordError(r.segmentNum, r.dataPath, int64(offset), err)
	}

	item := &ForwardReaderItem{Index: r.nextIndex, Offset: offset, Length: length, Record: rec}
	r.nextIndex++
	return item, nil
}

// seekDataTo advances the data reader to offset using only forward
// discards, in chunks bounded by bufio.Reader.Discard's int argument.
func (r *ForwardReader) seekDataTo(offset int64) error {
	delta := offset - r.dataPos
	if delta < 0 {
		return fmt.Errorf("storage: forward reader cannot seek backwards (at %d, wanted %d)", r.dataPos, offset)
	}

	for delta > 0 {
		chunk := delta
		if chunk > math.MaxInt32 {
			chunk = math.MaxInt32
		}
		n, err := r.dataReader.Discard(int(chunk))
		r.dataPos += int64(n)
		delta -= int64(n)
		if err != nil {
			return err
		}
	}

	return nil
}
