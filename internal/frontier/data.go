package frontier

/*
Frontier - manages crawl state & ordering

Responsibilities
- Hold the de-duplicated set of URLs discovered during a run, each with
  its admission-time depth, parent, and lifecycle status
- Apply distinct admission predicates for pages (scope/path-filtered)
  and assets (no scope check, a depth cushion for @import chains)
- Preserve FIFO discovery order so BFS emerges from simple enqueue/dequeue

This package performs no I/O and no network classification; the category
and scope primitives it consults come from pkg/urlutil.
*/

import (
	"time"

	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

// EntryKind distinguishes the two admission predicates a URL can enter
// the frontier under.
type EntryKind int

const (
	KindPage EntryKind = iota
	KindAsset
)

func (k EntryKind) String() string {
	if k == KindAsset {
		return "asset"
	}
	return "page"
}

// Status is a FrontierEntry's position in its lifecycle. Transitions
// follow Pending -> InProgress -> {Complete, Failed, Skipped}; a Failed
// entry may re-enter Pending iff its retry count is below the ceiling.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusComplete
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// FrontierEntry is one URL's admission record. Canonical is unique across
// a Frontier; Original is preserved for diagnostics since it may differ
// from the canonical form the entry is keyed by. An empty Parent marks a
// seed URL.
type FrontierEntry struct {
	Original    string
	Canonical   string
	Kind        EntryKind
	Depth       int
	Parent      string
	Status      Status
	RetryCount  int
	EnqueuedAt  time.Time
	ProcessedAt time.Time
	Err         string
}

// DefaultAssetDepthCushion allows assets discovered via @import chains to
// be admitted up to 5 levels deeper than the page depth ceiling.
const DefaultAssetDepthCushion = 5

// Policy is the subset of CrawlConfig the Frontier needs to run its
// admission predicates, passed in by the engine at construction so this
// package never depends on internal/config directly.
type Policy struct {
	Scope              urlutil.Scope
	CustomDomains      []string
	IncludePaths       []string
	ExcludePaths       []string
	DisabledCategories map[urlutil.Category]bool
	MaxDepth           int
	MaxPages           int
	UnlimitedMode      bool
	MaxRetries         int
	AssetDepthCushion  int
}
