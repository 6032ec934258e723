package storage

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/iamNilotpal/strata/pkg/errors"
	"github.com/iamNilotpal/strata/pkg/seginfo"
)

// headerSize is the fixed metadata-file preamble: 1 version byte, 7
// reserved zero bytes, 16 UUID bytes.
const headerSize = 24

// rowSize is the width of one metadata row: an 8-byte offset followed by
// an 8-byte length, both big-endian.
const rowSize = 16

// headerVersion is the only metadata header version this build
// understands.
const headerVersion = byte(1)

// segmentFiles holds the open handles for one segment's metadata and data
// file pair, plus the buffered writers used for durability-controlled
// appends and the logical sizes tracked across buffered-but-unflushed
// writes.
type segmentFiles struct {
	num      uint16
	dataUUID uuid.UUID

	metaPath string
	dataPath string

	metaFile *os.File
	dataFile *os.File

	metaWriter *bufio.Writer
	dataWriter *bufio.Writer

	// metaSize/dataSize track the logical end-of-file including any bytes
	// still sitting in metaWriter/dataWriter's buffer under Async
	// durability — they are this process's view of the file, which may
	// be ahead of what's actually durable on disk.
	metaSize int64
	dataSize int64
}

// createSegment bootstraps a brand new segment: a fresh data file named by
// a new UUID, and a metadata file whose header is written and fsynced
// immediately (segment creation always durable, regardless of the
// configured write-durability mode — it happens once, not per write).
func createSegment(dir string, num uint16) (*segmentFiles, error) {
	dataUUID := uuid.New()
	dataPath := filepath.Join(dir, dataUUID.String())
	metaPath := seginfo.MetadataPath(dir, num)

	dataFile, err := os.OpenFile(dataPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dataPath, dataUUID.String())
	}

	metaFile, err := os.OpenFile(metaPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		dataFile.Close()
		return nil, errors.ClassifyFileOpenError(err, metaPath, seginfo.MetadataName(num))
	}

	if err := writeHeader(metaFile, dataUUID); err != nil {
		metaFile.Close()
		dataFile.Close()
		return nil, err
	}

	return &segmentFiles{
		num:        num,
		dataUUID:   dataUUID,
		metaPath:   metaPath,
		dataPath:   dataPath,
		metaFile:   metaFile,
		dataFile:   dataFile,
		metaWriter: bufio.NewWriter(metaFile),
		dataWriter: bufio.NewWriter(dataFile),
		metaSize:   headerSize,
		dataSize:   0,
	}, nil
}

// openSegment opens the existing metadata+data pair for segment num,
// validating the header and sizing invariant before returning.
func openSegment(dir string, num uint16) (*segmentFiles, error) {
	metaPath := seginfo.MetadataPath(dir, num)
	metaFile, err := os.OpenFile(metaPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, metaPath, seginfo.MetadataName(num))
	}

	dataUUID, err := readHeader(num, metaFile, metaPath)
	if err != nil {
		metaFile.Close()
		return nil, err
	}

	metaInfo, err := metaFile.Stat()
	if err != nil {
		metaFile.Close()
		return nil, err
	}
	if (metaInfo.Size()-headerSize)%rowSize != 0 {
		metaFile.Close()
		return nil, errors.NewMetadataSizeError(num, metaPath, metaInfo.Size())
	}

	dataPath := filepath.Join(dir, dataUUID.String())
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR, 0644)
	if err != nil {
		metaFile.Close()
		return nil, errors.NewDataFileMissingError(num, dataUUID.String(), err)
	}

	dataInfo, err := dataFile.Stat()
	if err != nil {
		metaFile.Close()
		dataFile.Close()
		return nil, err
	}

	if _, err := metaFile.Seek(0, io.SeekEnd); err != nil {
		metaFile.Close()
		dataFile.Close()
		return nil, err
	}
	if _, err := dataFile.Seek(0, io.SeekEnd); err != nil {
		metaFile.Close()
		dataFile.Close()
		return nil, err
	}

	return &segmentFiles{
		num:        num,
		dataUUID:   dataUUID,
		metaPath:   metaPath,
		dataPath:   dataPath,
		metaFile:   metaFile,
		dataFile:   dataFile,
		metaWriter: bufio.NewWriter(metaFile),
		dataWriter: bufio.NewWriter(dataFile),
		metaSize:   metaInfo.Size(),
		dataSize:   dataInfo.Size(),
	}, nil
}

// writeHeader writes and fsyncs the 24-byte segment header.
func writeHeader(f *os.File, dataUUID uuid.UUID) error {
	buf := make([]byte, headerSize)
	buf[0] = headerVersion
	copy(buf[8:headerSize], dataUUID[:])
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Sync()
}

// readHeader reads and validates a segment's 24-byte header, returning the
// UUID naming its data file.
func readHeader(num uint16, f *os.File, path string) (uuid.UUID, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, headerSize), buf); err != nil {
		return uuid.UUID{}, err
	}

	if buf[0] != headerVersion {
		return uuid.UUID{}, errors.NewHeaderVersionError(num, path, buf[0], headerVersion)
	}

	var id uuid.UUID
	copy(id[:], buf[8:headerSize])
	return id, nil
}

// appendData appends b to the segment's data file through the buffered
// writer, returning the offset it was written at.
func (s *segmentFiles) appendData(b []byte) (int64, error) {
	offset := s.dataSize
	n, err := s.dataWriter.Write(b)
	s.dataSize += int64(n)
	return offset, err
}

// appendMetaRow appends one (offset, length) row to the metadata file,
// returning the row's index.
func (s *segmentFiles) appendMetaRow(offset, length uint64) (uint64, error) {
	index := uint64(s.metaSize-headerSize) / rowSize
	var row [rowSize]byte
	binary.BigEndian.PutUint64(row[0:8], offset)
	binary.BigEndian.PutUint64(row[8:16], length)
	n, err := s.metaWriter.Write(row[:])
	s.metaSize += int64(n)
	return index, err
}

// flush applies a durability policy to the segment's pending writes.
func (s *segmentFiles) flush(flushOnly, sync bool) error {
	if !flushOnly && !sync {
		return nil
	}
	if err := s.dataWriter.Flush(); err != nil {
		return err
	}
	if err := s.metaWriter.Flush(); err != nil {
		return err
	}
	if sync {
		if err := s.dataFile.Sync(); err != nil {
			return errors.ClassifySyncError(err, s.dataUUID.String(), s.dataPath, int(s.dataSize))
		}
		if err := s.metaFile.Sync(); err != nil {
			return errors.ClassifySyncError(err, seginfo.MetadataName(s.num), s.metaPath, int(s.metaSize))
		}
	}
	return nil
}

// close flushes and closes both handles.
func (s *segmentFiles) close() error {
	_ = s.dataWriter.Flush()
	_ = s.metaWriter.Flush()
	dataErr := s.dataFile.Close()
	metaErr := s.metaFile.Close()
	if dataErr != nil {
		return dataErr
	}
	return metaErr
}
