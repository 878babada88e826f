package ssrfguard

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

// Error reports why Validate rejected a URL. SSRF rejections are never
// retryable: the same hostname will resolve to the same blocked range on
// the next attempt.
type Error struct {
	Message string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ssrf guard: %s", e.Message)
}

func (e *Error) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

// ErrorCause maps every Error produced by this package to the closed
// archivelog.ErrorCause alphabet. Observational only.
func ErrorCause(*Error) archivelog.ErrorCause {
	return archivelog.CauseSSRFBlocked
}
