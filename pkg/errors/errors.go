// Package errors provides the structured error system used across the
// tickvault archive.
//
// The design follows a hierarchical structure: a foundational baseError
// carries the code, message, cause and free-form details, and domain-specific
// types extend it with the context their layer needs to diagnose a failure.
// A segment error knows which file and which array were involved; a storage
// error knows which index identifier and block number; a history error knows
// which tick and which times. Capturing this context at the point of failure
// is what makes the difference between "descriptor mismatch" and "descriptor
// mismatch on MKP/IST/1 block 0x2a, elm_max expected 0x4000000 got 3".
//
// The archive distinguishes three severities, reflected in how callers treat
// the codes rather than in the types themselves:
//
//   - Fatal: programmer errors or medium corruption (descriptor mismatch,
//     read past the published count, invalid level, malformed storage
//     directory, index table overflow, non-monotonic update times). Callers
//     log and abort.
//   - Recoverable: contention. The write lease reports "already held" as the
//     sentinel ErrWriterHeld so the caller may retry or yield.
//   - Informational: data oddities (a bid observed above an ask during a
//     best-price scan). These are logged and processed, never raised.
package errors

import (
	stdErrors "errors"
)

// ErrWriterHeld is the soft failure returned when a write-lease acquisition
// finds the lease already held. It is the only error in the system that
// callers are expected to absorb and retry.
var ErrWriterHeld = stdErrors.New("segment write lease already held")

// IsValidationError checks if the given error is a ValidationError or
// contains one in its error chain.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return stdErrors.As(err, &ve)
}

// IsSegmentError determines if an error originated in the memory-mapped
// segment layer.
func IsSegmentError(err error) bool {
	var se *SegmentError
	return stdErrors.As(err, &se)
}

// IsStorageError determines if an error originated in the storage system
// (indexes, blocks, directory layout).
func IsStorageError(err error) bool {
	var se *StorageError
	return stdErrors.As(err, &se)
}

// IsHistoryError determines if an error originated in the level-1 history
// engine.
func IsHistoryError(err error) bool {
	var he *HistoryError
	return stdErrors.As(err, &he)
}

// AsValidationError safely extracts a ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stdErrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsSegmentError safely extracts a SegmentError from an error chain,
// providing access to the segment path, array index and element range
// involved in the failure.
func AsSegmentError(err error) (*SegmentError, bool) {
	var se *SegmentError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsStorageError safely extracts a StorageError from an error chain,
// providing access to the index identifier, block number and path involved.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsHistoryError safely extracts a HistoryError from an error chain,
// providing access to the tick and times involved in a failed ingest step.
func AsHistoryError(err error) (*HistoryError, bool) {
	var he *HistoryError
	if stdErrors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from any error that supports it, or
// returns ErrorCodeInternal for errors that don't have specific codes. This
// provides a consistent way to categorize errors for logging and handling.
func GetErrorCode(err error) ErrorCode {
	if ve, ok := AsValidationError(err); ok {
		return ve.Code()
	}
	if se, ok := AsSegmentError(err); ok {
		return se.Code()
	}
	if se, ok := AsStorageError(err); ok {
		return se.Code()
	}
	if he, ok := AsHistoryError(err); ok {
		return he.Code()
	}

	// Fluent chains that end on a base-error method surface the embedded
	// error; its code is still the right one.
	var coded interface{ Code() ErrorCode }
	if stdErrors.As(err, &coded) {
		return coded.Code()
	}
	return ErrorCodeInternal
}

// GetErrorDetails extracts structured details from any error that supports
// them, returning an empty map for errors without details.
func GetErrorDetails(err error) map[string]any {
	if ve, ok := AsValidationError(err); ok {
		if details := ve.Details(); details != nil {
			return details
		}
	}
	if se, ok := AsSegmentError(err); ok {
		if details := se.Details(); details != nil {
			return details
		}
	}
	if se, ok := AsStorageError(err); ok {
		if details := se.Details(); details != nil {
			return details
		}
	}
	if he, ok := AsHistoryError(err); ok {
		if details := he.Details(); details != nil {
			return details
		}
	}

	var detailed interface{ Details() map[string]any }
	if stdErrors.As(err, &detailed) {
		if details := detailed.Details(); details != nil {
			return details
		}
	}
	return make(map[string]any)
}
