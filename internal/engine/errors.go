package engine

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseStorageInit ErrorCause = "storage init failure"
	ErrCauseNoSeed      ErrorCause = "no seed url"
)

// Error reports a failure in the Engine's own setup or lifecycle, as
// opposed to a per-URL failure already classified and recorded by one of
// the collaborator packages. Always Fatal: an Engine-level Error aborts
// the whole run.
type Error struct {
	Message string
	Cause   ErrorCause
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Cause, e.Message)
}

func (e *Error) Severity() failure.Severity {
	return failure.SeverityFatal
}

func mapEngineErrorToMetadataCause(err *Error) archivelog.ErrorCause {
	switch err.Cause {
	case ErrCauseStorageInit:
		return archivelog.CauseStorageFailure
	case ErrCauseNoSeed:
		return archivelog.CauseInvariantViolation
	default:
		return archivelog.CauseUnknown
	}
}
