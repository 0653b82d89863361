package errors

// StorageError is a specialized error type for the storage system: the
// directory of indexes, their block segments, and the index tables. It embeds
// baseError to inherit the standard error functionality, then adds fields
// that identify the index and block where the problem occurred.
type StorageError struct {
	*baseError
	identifier string // Canonical "venue/instrument/level" identifier.
	block      uint64 // Block number involved, when block-specific.
	path       string // Path of the file or directory that caused the issue.
	time       uint64 // Event time involved in the failure, when relevant.
}

// NewStorageError creates a new storage-specific error.
func NewStorageError(err error, code ErrorCode, msg string) *StorageError {
	return &StorageError{baseError: NewBaseError(err, code, msg)}
}

// WithIdentifier sets the canonical index identifier involved in the error.
func (se *StorageError) WithIdentifier(id string) *StorageError {
	se.identifier = id
	return se
}

// WithBlock records which block number was involved.
func (se *StorageError) WithBlock(number uint64) *StorageError {
	se.block = number
	return se
}

// WithPath captures which path was being processed when the error occurred.
func (se *StorageError) WithPath(path string) *StorageError {
	se.path = path
	return se
}

// WithTime records the event time involved in the failure.
func (se *StorageError) WithTime(t uint64) *StorageError {
	se.time = t
	return se
}

// Identifier returns the canonical index identifier involved.
func (se *StorageError) Identifier() string { return se.identifier }

// Block returns the block number involved.
func (se *StorageError) Block() uint64 { return se.block }

// Path returns the path of the file or directory involved.
func (se *StorageError) Path() string { return se.path }

// Time returns the event time involved.
func (se *StorageError) Time() uint64 { return se.time }
