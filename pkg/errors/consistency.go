package errors

// ConsistencyError reports on-disk state that violates a structural
// invariant of the segment format: a metadata file sized wrong, a header
// whose version this build doesn't understand, a record whose tag byte
// isn't one we know how to decode. Operations that hit one abort; the
// directory is considered corrupt until an operator intervenes.
type ConsistencyError struct {
	*baseError

	// segmentNum identifies which segment's files were being read.
	segmentNum uint16

	// path is the file that failed the invariant check.
	path string

	// offset is the byte position within path where the check failed,
	// when known.
	offset int64
}

// NewConsistencyError creates a new consistency-specific error.
func NewConsistencyError(err error, code ErrorCode, msg string) *ConsistencyError {
	return &ConsistencyError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the ConsistencyError type.
func (ce *ConsistencyError) WithMessage(msg string) *ConsistencyError {
	ce.baseError.WithMessage(msg)
	return ce
}

// WithCode sets the error code while preserving the ConsistencyError type.
func (ce *ConsistencyError) WithCode(code ErrorCode) *ConsistencyError {
	ce.baseError.WithCode(code)
	return ce
}

// WithDetail adds contextual information while maintaining the ConsistencyError type.
func (ce *ConsistencyError) WithDetail(key string, value any) *ConsistencyError {
	ce.baseError.WithDetail(key, value)
	return ce
}

// WithSegmentNum records which segment was being read when the
// inconsistency was discovered.
func (ce *ConsistencyError) WithSegmentNum(n uint16) *ConsistencyError {
	ce.segmentNum = n
	return ce
}

// WithPath records which file failed the invariant check.
func (ce *ConsistencyError) WithPath(path string) *ConsistencyError {
	ce.path = path
	return ce
}

// WithOffset records the byte position where the check failed.
func (ce *ConsistencyError) WithOffset(offset int64) *ConsistencyError {
	ce.offset = offset
	return ce
}

// SegmentNum returns the segment number involved in the error.
func (ce *ConsistencyError) SegmentNum() uint16 { return ce.segmentNum }

// Path returns the file path involved in the error.
func (ce *ConsistencyError) Path() string { return ce.path }

// Offset returns the byte offset at which the check failed.
func (ce *ConsistencyError) Offset() int64 { return ce.offset }

// NewMetadataSizeError reports a metadata file whose post-header size is
// not a multiple of the 16-byte row width.
func NewMetadataSizeError(segmentNum uint16, path string, size int64) *ConsistencyError {
	return NewConsistencyError(nil, ErrorCodeMetadataSizeInvalid, "metadata file size invariant violated").
		WithSegmentNum(segmentNum).
		WithPath(path).
		WithOffset(size).
		WithDetail("rowWidth", 16).
		WithDetail("headerSize", 24)
}

// NewHeaderVersionError reports a segment header with an unsupported
// version byte.
func NewHeaderVersionError(segmentNum uint16, path string, got, want byte) *ConsistencyError {
	return NewConsistencyError(nil, ErrorCodeHeaderVersionMismatch, "segment header version mismatch").
		WithSegmentNum(segmentNum).
		WithPath(path).
		WithDetail("gotVersion", got).
		WithDetail("wantVersion", want)
}

// NewDataFileMissingError reports a metadata header naming a data file
// UUID that can't be opened.
func NewDataFileMissingError(segmentNum uint16, dataFileName string, cause error) *ConsistencyError {
	return NewConsistencyError(cause, ErrorCodeDataFileMissing, "segment data file missing or unreadable").
		WithSegmentNum(segmentNum).
		WithPath(dataFileName)
}

// NewUnknownValueTagError reports a record byte stream with a tag byte
// outside the known range.
func NewUnknownValueTagError(segmentNum uint16, offset int64, tag byte) *ConsistencyError {
	return NewConsistencyError(nil, ErrorCodeUnknownValueTag, "unknown value tag byte while decoding record").
		WithSegmentNum(segmentNum).
		WithOffset(offset).
		WithDetail("tag", tag)
}

// NewTruncatedRecordError reports a partial metadata row or partial data
// read where a complete one was expected.
func NewTruncatedRecordError(segmentNum uint16, path string, offset int64, cause error) *ConsistencyError {
	return NewConsistencyError(cause, ErrorCodeTruncatedRecord, "truncated record while reading segment").
		WithSegmentNum(segmentNum).
		WithPath(path).
		WithOffset(offset)
}
