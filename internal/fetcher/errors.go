package fetcher

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

// ErrorCode is the closed alphabet for a terminal fetch failure.
type ErrorCode string

const (
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeNetwork     ErrorCode = "NETWORK"
	ErrCodeUnknown     ErrorCode = "UNKNOWN"
	ErrCodeSSRF        ErrorCode = "SSRF"
	ErrCodeTooLarge    ErrorCode = "TOO_LARGE"
)

// Error reports why a fetch never produced a FetchResult. Retryable errors
// have already exhausted the fetcher's own retry ladder by the time they
// reach the caller: a *fetcher.Error is always a terminal, per-URL failure
// from the engine's perspective.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetcher: %s: %s", e.Code, e.Message)
}

func (e *Error) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ErrorCause maps a *fetcher.Error to the closed archivelog.ErrorCause
// alphabet. Observational only — never used to drive control flow.
func ErrorCause(err *Error) archivelog.ErrorCause {
	switch err.Code {
	case ErrCodeSSRF:
		return archivelog.CauseSSRFBlocked
	case ErrCodeRateLimited:
		return archivelog.CausePolicyDisallow
	case ErrCodeTimeout, ErrCodeNetwork:
		return archivelog.CauseNetworkFailure
	case ErrCodeTooLarge:
		return archivelog.CauseInvariantViolation
	default:
		return archivelog.CauseUnknown
	}
}
