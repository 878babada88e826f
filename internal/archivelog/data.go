package archivelog

import "time"

/*
Metadata collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred over free-text.

Allowed attribute values:
- Primitives, timestamps, URLs (as values, not objects with behavior),
  hashes, status codes, durations, identifiers.
*/

type FetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	crawlDepth  int
}

// Stats is a terminal, derived summary of a completed run. It contains
// only aggregate counts and durations, is computed once after the engine
// reaches a terminal state, and must not influence scheduling or retries.
type Stats struct {
	totalPages  int
	totalAssets int
	totalErrors int
	durationMs  int64
}

func NewStats(totalPages, totalAssets, totalErrors int, durationMs int64) Stats {
	return Stats{totalPages: totalPages, totalAssets: totalAssets, totalErrors: totalErrors, durationMs: durationMs}
}

func (s Stats) TotalPages() int  { return s.totalPages }
func (s Stats) TotalAssets() int { return s.totalAssets }
func (s Stats) TotalErrors() int { return s.totalErrors }
func (s Stats) DurationMs() int64 { return s.durationMs }

type ArtifactKind string

const (
	ArtifactPage  ArtifactKind = "page"
	ArtifactAsset ArtifactKind = "asset"
)

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
 - ErrorCause is for observability only.
 - It must never be used to derive retry, continuation, or abort decisions.
 - ErrorCause values MUST have stable, package-agnostic semantics.
 - Pipeline packages MAY map their local errors to ErrorCause, but MUST
   NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be
used.
*/
type ErrorCause int

const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
	CauseSSRFBlocked
)

type ErrorRecord struct {
	packageName string
	action      string
	cause       ErrorCause
	errorString string
	observedAt  time.Time
	attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{Key: key, Value: val}
}

type AttributeKey string

const (
	AttrTime         AttributeKey = "time"
	AttrURL          AttributeKey = "url"
	AttrCanonicalURL AttributeKey = "canonical_url"
	AttrHost         AttributeKey = "host"
	AttrPath         AttributeKey = "path"
	AttrLocalPath    AttributeKey = "local_path"
	AttrDepth        AttributeKey = "depth"
	AttrField        AttributeKey = "field"
	AttrHTTPStatus   AttributeKey = "http_status"
	AttrAssetURL     AttributeKey = "asset_url"
	AttrWritePath    AttributeKey = "write_path"
	AttrCategory     AttributeKey = "category"
)

// Level is the severity of a progress/log Event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is the {level, message, context} shape the external progress
// stream emits over the channel returned by Recorder.Events.
type Event struct {
	Level   Level
	Message string
	Context []Attribute
}
