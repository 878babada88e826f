package htmlextract

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseNotHTML ExtractionErrorCause = "not html"
)

// ExtractionError is always Recoverable: a single malformed page must not
// abort the run, it just yields no links and the engine moves on.
type ExtractionError struct {
	Message string
	Cause   ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s: %s", e.Cause, e.Message)
}

func (e *ExtractionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapExtractionErrorToMetadataCause(err *ExtractionError) archivelog.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML:
		return archivelog.CauseContentInvalid
	default:
		return archivelog.CauseUnknown
	}
}
