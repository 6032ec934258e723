package index

import "github.com/iamNilotpal/strata/internal/storage"

// Refresh tails store's segments from the current cursor up to whatever
// segment is active right now, applying every record it finds to the
// memtables. It is idempotent and monotonic: calling it again before new
// writes land is a no-op, and it never re-reads a record it has already
// applied.
func (idx *Index) Refresh(store *storage.Storage) error {
	activeNum, err := store.CurrentActiveSegmentNum()
	if err != nil {
		return err
	}

	cur := idx.Cursor()
	startSeg := cur.Segment
	if startSeg == 0 {
		startSeg = 1
	}

	for seg := startSeg; seg <= activeNum; seg++ {
		startIdx := uint64(0)
		if seg == cur.Segment {
			startIdx = cur.Index
		}

		if err := idx.replaySegment(store, seg, startIdx, seg < activeNum); err != nil {
			return err
		}
	}

	return nil
}

// replaySegment reads seg from startIdx to EOF, applying each record. sealed
// indicates the segment can never grow again (it isn't the active one), so
// the cursor can safely skip past it even if nothing new was read.
func (idx *Index) replaySegment(store *storage.Storage, seg uint16, startIdx uint64, sealed bool) error {
	handle, err := store.OpenSegmentShared(seg)
	if err != nil {
		return err
	}
	defer handle.Close()

	reader, err := storage.NewForwardReader(seg, handle.MetaFile, handle.DataFile, handle.MetaPath, handle.DataPath, startIdx)
	if err != nil {
		return err
	}

	lastIdx := startIdx
	read := false
	for {
		item, err := reader.Next()
		if err != nil {
			return err
		}
		if item == nil {
			break
		}

		logKey, err := storage.NewLogKey(seg, item.Index)
		if err != nil {
			return err
		}
		idx.Apply(logKey, item.Record)
		lastIdx = item.Index
		read = true
	}

	switch {
	case read:
		idx.AdvanceCursor(seg, lastIdx)
	case sealed:
		idx.SetCursor(Cursor{Segment: seg + 1, Index: 0})
	}

	return nil
}
