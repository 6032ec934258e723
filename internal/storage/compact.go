package storage

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/iamNilotpal/strata/internal/codec"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/pkg/errors"
	"github.com/iamNilotpal/strata/pkg/filesys"
	"github.com/iamNilotpal/strata/pkg/seginfo"
)

// RotateAndCompact retires the active segment: it rewrites the segment's
// data file keeping only the last-written record per primary key (dropping
// keys whose last write was a tombstone), atomically swaps that in as the
// segment's new metadata+data pair, then opens a fresh segment N+1 and
// re-points `active` at it.
//
// It returns the number of the segment that was just compacted, so the
// caller can rebuild the in-memory indexes that referenced it.
func (s *Storage) RotateAndCompact(sch *schema.Schema) (compactedSegNum uint16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, num, releaseExclusive, err := s.acquireExclusiveActive()
	if err != nil {
		return 0, err
	}
	defer releaseExclusive()

	// The scan below reads the segment through fresh handles, so any bytes
	// still buffered by this handle's writers must reach the files first.
	if err := seg.flush(true, false); err != nil {
		return 0, err
	}

	_, pkPos, ok := sch.FieldByName(sch.PrimaryKey)
	if !ok {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "primary key is not a declared field").
			WithField(sch.PrimaryKey).WithRule("declared")
	}

	releaseData, err := s.locker.AcquireShared(seg.dataFile)
	if err != nil {
		return 0, err
	}

	finalOrder, winners, err := scanLastWriteWins(num, seg.metaPath, seg.dataPath, pkPos)
	releaseData()
	if err != nil {
		return 0, err
	}

	newDataUUID := uuid.New()
	newDataPath := filepath.Join(s.dir, newDataUUID.String())
	rows, err := writeCompactedData(newDataPath, finalOrder, winners)
	if err != nil {
		return 0, err
	}

	tmpMetaPath := seg.metaPath + ".compact.tmp"
	if err := writeCompactedMetadata(tmpMetaPath, newDataUUID, rows); err != nil {
		return 0, err
	}

	if err := filesys.AtomicReplaceFile(tmpMetaPath, seg.metaPath); err != nil {
		return 0, err
	}

	newActiveNum := num + 1
	newActiveSeg, err := createSegment(s.dir, newActiveNum)
	if err != nil {
		return 0, err
	}
	if err := filesys.ReplaceSymlink(seginfo.MetadataName(newActiveNum), seginfo.ActivePath(s.dir)); err != nil {
		newActiveSeg.close()
		return 0, err
	}

	oldSeg := s.active
	s.active = newActiveSeg
	s.activeNum = newActiveNum
	_ = oldSeg.close()

	return num, nil
}

// scanLastWriteWins forward-reads a segment's own data+metadata (through
// independent read-only handles, so the writer's file position is
// untouched) and returns the surviving primary keys in last-occurrence
// order alongside the winning record for each.
func scanLastWriteWins(num uint16, metaPath, dataPath string, pkPos int) ([]schema.Indexable, map[schema.Indexable]codec.Record, error) {
	metaRO, err := os.Open(metaPath)
	if err != nil {
		return nil, nil, err
	}
	defer metaRO.Close()

	dataRO, err := os.Open(dataPath)
	if err != nil {
		return nil, nil, err
	}
	defer dataRO.Close()

	reader, err := NewForwardReader(num, metaRO, dataRO, metaPath, dataPath, 0)
	if err != nil {
		return nil, nil, err
	}

	winners := make(map[schema.Indexable]codec.Record)
	lastPos := make(map[schema.Indexable]int)
	var occurrence int

	for {
		item, err := reader.Next()
		if err != nil {
			return nil, nil, err
		}
		if item == nil {
			break
		}
		if pkPos >= len(item.Record.Values) {
			continue
		}
		pk, ok := schema.ValueToIndexable(item.Record.Values[pkPos])
		if !ok {
			continue
		}
		winners[pk] = item.Record
		lastPos[pk] = occurrence
		occurrence++
	}

	type posKey struct {
		pk  schema.Indexable
		pos int
	}
	ordered := make([]posKey, 0, len(lastPos))
	for pk, pos := range lastPos {
		ordered = append(ordered, posKey{pk, pos})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })

	finalOrder := make([]schema.Indexable, len(ordered))
	for i, ok := range ordered {
		finalOrder[i] = ok.pk
	}

	return finalOrder, winners, nil
}

type compactedRow struct {
	offset uint64
	length uint64
}

// writeCompactedData writes the surviving, non-tombstoned records to a
// fresh data file in finalOrder and fsyncs it unconditionally.
func writeCompactedData(path string, finalOrder []schema.Indexable, winners map[schema.Indexable]codec.Record) ([]compactedRow, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var rows []compactedRow
	var pos int64

	for _, pk := range finalOrder {
		rec := winners[pk]
		if rec.Tombstone {
			continue
		}
		buf := rec.Serialize()
		n, err := w.Write(buf)
		if err != nil {
			return nil, err
		}
		rows = append(rows, compactedRow{offset: uint64(pos), length: uint64(n)})
		pos += int64(n)
	}

	if err := w.Flush(); err != nil {
		return nil, err
	}
	return rows, f.Sync()
}

// writeCompactedMetadata writes a new segment header plus one row per
// retained record to a temporary file and fsyncs it, ready for the caller
// to atomically rename over the segment's real metadata path.
func writeCompactedMetadata(path string, dataUUID uuid.UUID, rows []compactedRow) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeHeader(f, dataUUID); err != nil {
		return err
	}

	for _, r := range rows {
		var row [rowSize]byte
		binary.BigEndian.PutUint64(row[0:8], r.offset)
		binary.BigEndian.PutUint64(row[8:16], r.length)
		if _, err := f.Write(row[:]); err != nil {
			return err
		}
	}

	return f.Sync()
}
