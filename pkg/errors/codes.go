package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// Base error codes represent the fundamental categories of failures that can
// occur across any part of the archive. These codes provide the foundation
// layer of error classification.
const (
	// ErrorCodeIO represents failures in input/output operations across any
	// system boundary: creating or resizing segment files, mapping them into
	// memory, synchronizing mapped pages, or scanning storage directories.
	ErrorCodeIO ErrorCode = "IO_ERROR"

	// ErrorCodeInvalidInput represents caller-side errors where the provided
	// data doesn't meet the system's requirements or constraints: bad
	// dimensions, nil loggers, empty identifiers, mismatched array counts.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeInternal represents unexpected failures that don't fit into
	// other categories. These indicate bugs or violated invariants that
	// shouldn't occur during normal operation.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Segment-specific error codes cover the shared memory-mapped container.
// A segment is attached by many processes at once, so most of these represent
// disagreements between what an attacher expects and what the file holds.
const (
	// ErrorCodeDescriptorMismatch indicates that a segment file's on-disk
	// descriptor (element capacity, region sizes, array strides) or its
	// implementation template does not match what the attacher supplied.
	// The file belongs to a different schema; continuing would corrupt it.
	ErrorCodeDescriptorMismatch ErrorCode = "SEGMENT_DESCRIPTOR_MISMATCH"

	// ErrorCodeSegmentSize indicates that an existing segment file has a size
	// that is neither zero nor the size implied by its descriptor. The file
	// was truncated or belongs to another layout.
	ErrorCodeSegmentSize ErrorCode = "SEGMENT_SIZE_MISMATCH"

	// ErrorCodeReadPastPublished indicates an attempt to read elements beyond
	// the published element count. Published counts are the only visibility
	// fence, so this is always a programming error on the reader's side.
	ErrorCodeReadPastPublished ErrorCode = "SEGMENT_READ_PAST_PUBLISHED"

	// ErrorCodeWriteOverflow indicates that a write reservation would exceed
	// the segment's fixed element capacity.
	ErrorCodeWriteOverflow ErrorCode = "SEGMENT_WRITE_OVERFLOW"

	// ErrorCodeWriterState indicates a write API call in the wrong lease
	// state: reserving slots without the lease, or acquiring it twice from
	// the same handle.
	ErrorCodeWriterState ErrorCode = "SEGMENT_WRITER_STATE"
)

// Storage-specific error codes extend the taxonomy to the directory of
// indexes and their blocks.
const (
	// ErrorCodeNotStorageDir indicates that the directory given to the
	// storage system does not carry the storage marker file.
	ErrorCodeNotStorageDir ErrorCode = "STORAGE_NOT_A_STORAGE_DIR"

	// ErrorCodeInvalidLevel indicates a level outside the supported schemas.
	ErrorCodeInvalidLevel ErrorCode = "STORAGE_INVALID_LEVEL"

	// ErrorCodeIndexTableFull indicates that an index table has reached its
	// fixed block capacity and cannot reference another block.
	ErrorCodeIndexTableFull ErrorCode = "STORAGE_INDEX_TABLE_FULL"

	// ErrorCodeWriteKey indicates an append or release with a key that does
	// not match the nonce stamped when the index was opened for writing.
	ErrorCodeWriteKey ErrorCode = "STORAGE_WRITE_KEY_MISMATCH"

	// ErrorCodeRowOrder indicates that appended rows are not sorted by time,
	// or start before the previous block's end time.
	ErrorCodeRowOrder ErrorCode = "STORAGE_ROW_ORDER"
)

// History-specific error codes cover the level-1 reconstruction engine.
const (
	// ErrorCodeTimeRegression indicates a prepare or add call whose time
	// moves backwards with respect to the engine's monotonic clocks.
	ErrorCodeTimeRegression ErrorCode = "HISTORY_TIME_REGRESSION"

	// ErrorCodeTimeBeyondAcceptance indicates an update time at or beyond
	// the end-of-acceptance horizon (current + curve length x resolution).
	ErrorCodeTimeBeyondAcceptance ErrorCode = "HISTORY_TIME_BEYOND_ACCEPTANCE"

	// ErrorCodeTickExists indicates an initial-mode add naming a tick that
	// the engine already tracks.
	ErrorCodeTickExists ErrorCode = "HISTORY_TICK_EXISTS"

	// ErrorCodeAnchorUnderflow indicates an anchor tick below half the
	// heatmap height, which would place heatmap rows at negative ticks.
	ErrorCodeAnchorUnderflow ErrorCode = "HISTORY_ANCHOR_UNDERFLOW"
)
