package storage

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

type StorageErrorCause string

const (
	ErrCauseDiskFull     StorageErrorCause = "disk is full"
	ErrCauseWriteFailure StorageErrorCause = "write failed"
	ErrCausePathError    StorageErrorCause = "path error"
	ErrCauseTraversal    StorageErrorCause = "path escapes sandbox"
	ErrCauseSizeCeiling  StorageErrorCause = "total size ceiling exceeded"
	ErrCauseNotFound     StorageErrorCause = "file not found"
)

type StorageError struct {
	Message   string
	Retryable bool
	Cause     StorageErrorCause
	Path      string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s", e.Cause)
}

func (e *StorageError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapStorageErrorToMetadataCause maps storage-local error semantics to the
// canonical archivelog.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used to derive
// control-flow decisions.
func mapStorageErrorToMetadataCause(err *StorageError) archivelog.ErrorCause {
	switch err.Cause {
	case ErrCauseDiskFull:
		return archivelog.CauseStorageFailure
	case ErrCauseWriteFailure:
		return archivelog.CauseStorageFailure
	case ErrCausePathError:
		return archivelog.CauseStorageFailure
	case ErrCauseTraversal:
		return archivelog.CauseInvariantViolation
	case ErrCauseSizeCeiling:
		return archivelog.CauseInvariantViolation
	case ErrCauseNotFound:
		return archivelog.CauseStorageFailure
	default:
		return archivelog.CauseUnknown
	}
}
