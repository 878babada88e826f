package cssassets

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseEmptyStylesheet ExtractionErrorCause = "empty stylesheet"
)

// ExtractionError is always Recoverable: a single malformed or empty
// stylesheet must not abort the run.
type ExtractionError struct {
	Message string
	Cause   ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("css extraction error: %s: %s", e.Cause, e.Message)
}

func (e *ExtractionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapExtractionErrorToMetadataCause(err *ExtractionError) archivelog.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyStylesheet:
		return archivelog.CauseContentInvalid
	default:
		return archivelog.CauseUnknown
	}
}
