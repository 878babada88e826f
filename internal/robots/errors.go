package robots

import (
	"fmt"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

type RobotsErrorCause string

const (
	// ErrCauseRepeatedFetchFailure = "repeated fetch failure"
	ErrCauseDisallowRoot         = "root disallowed to be crawled"
	ErrCauseInvalidRobotsUrl     = "invalid robots.txt URL"
	ErrCausePreFetchFailure      = "failed before making fetch"
	ErrCauseHttpFetchFailure     = "failed to fetch"
	ErrCauseHttpTooManyRequests  = "too many requests"
	ErrCauseHttpTooManyRedirects = "too many redirects"
	ErrCauseHttpServerError      = "http server error"
	ErrCauseHttpUnexpectedStatus = "unexpected http status"
	ErrCauseParseError           = "failed to parse robots.txt"
)

type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s", e.Cause)
}

// Severity is always Recoverable: a robots fetch or evaluation failure at
// Start is non-blocking, and a disallow decision for a single URL during
// the run just causes that entry to be skipped.
func (e *RobotsError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

// IsRetryable lets pkg/retry.Retry decide whether to back off and try the
// fetch again instead of giving up on the first error.
func (e *RobotsError) IsRetryable() bool {
	return e.Retryable
}

// mapRobotsErrorToMetadataCause maps robots-local error semantics
// to the canonical archivelog.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapRobotsErrorToMetadataCause(err *RobotsError) archivelog.ErrorCause {
	switch err.Cause {
	case ErrCauseDisallowRoot:
		return archivelog.CausePolicyDisallow
	case ErrCauseInvalidRobotsUrl:
		return archivelog.CauseInvariantViolation
	case ErrCausePreFetchFailure:
		return archivelog.CauseUnknown
	case ErrCauseHttpFetchFailure:
		return archivelog.CauseNetworkFailure
	case ErrCauseHttpTooManyRequests:
		return archivelog.CauseNetworkFailure
	case ErrCauseHttpTooManyRedirects:
		return archivelog.CauseNetworkFailure
	case ErrCauseHttpServerError:
		return archivelog.CauseNetworkFailure
	case ErrCauseHttpUnexpectedStatus:
		return archivelog.CauseNetworkFailure
	case ErrCauseParseError:
		return archivelog.CauseContentInvalid
	default:
		return archivelog.CauseUnknown
	}
}
