package frontier

import (
	"sync"
	"time"

	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Apply distinct admission predicates for pages vs. assets
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- rewriting
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Frontier is the de-duplicated, status-tracked work queue the BFS crawl
// drives against. The zero value is not usable; use NewFrontier.
type Frontier struct {
	seedURL string
	policy  Policy

	mu              sync.Mutex
	entries         map[string]*FrontierEntry
	seen            Set[string]
	order           *FIFOQueue[string]
	pendingCount    int
	inProgressCount int
}

// NewFrontier builds a Frontier scoped to seedURL under policy. seedURL is
// stored as given; every AddPage call canonicalises it and uses it as the
// scope anchor.
func NewFrontier(seedURL string, policy Policy) *Frontier {
	if policy.AssetDepthCushion == 0 {
		policy.AssetDepthCushion = DefaultAssetDepthCushion
	}
	return &Frontier{
		seedURL: seedURL,
		policy:  policy,
		entries: make(map[string]*FrontierEntry),
		seen:    NewSet[string](),
		order:   NewFIFOQueue[string](),
	}
}

// AddPage applies the full page admission predicate: canonical dedup,
// depth/size ceilings (unless unlimitedMode), scope, include/exclude path
// filters, then the shared file-type check.
func (f *Frontier) AddPage(rawURL, parent string, depth int) bool {
	return f.add(rawURL, parent, depth, KindPage)
}

// AddAsset applies the asset admission predicate: canonical dedup,
// depth/size ceilings with a cushion for @import chains, no scope check,
// then the shared file-type check.
func (f *Frontier) AddAsset(rawURL, parent string, depth int) bool {
	return f.add(rawURL, parent, depth, KindAsset)
}

func (f *Frontier) add(rawURL, parent string, depth int, kind EntryKind) bool {
	canon := urlutil.Canonicalise(rawURL, nil)
	if canon == nil {
		return false
	}
	key := canon.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen.Contains(key) {
		return false
	}

	if !f.policy.UnlimitedMode {
		maxDepth := f.policy.MaxDepth
		if kind == KindAsset {
			maxDepth += f.policy.AssetDepthCushion
		}
		if depth > maxDepth {
			return false
		}
		if f.policy.MaxPages > 0 && len(f.entries) >= f.policy.MaxPages {
			return false
		}
	}

	if kind == KindPage {
		seed := urlutil.Canonicalise(f.seedURL, nil)
		if seed != nil && !urlutil.InScope(canon, seed, f.policy.Scope, f.policy.CustomDomains) {
			return false
		}
		if len(f.policy.IncludePaths) > 0 && !matchesAny(key, f.policy.IncludePaths) {
			return false
		}
		if len(f.policy.ExcludePaths) > 0 && matchesAny(key, f.policy.ExcludePaths) {
			return false
		}
	}

	if len(f.policy.DisabledCategories) > 0 {
		category := urlutil.MimeCategory(urlutil.Extension(canon))
		if f.policy.DisabledCategories[category] {
			return false
		}
	}

	f.seen.Add(key)
	f.entries[key] = &FrontierEntry{
		Original:   rawURL,
		Canonical:  key,
		Kind:       kind,
		Depth:      depth,
		Parent:     parent,
		Status:     StatusPending,
		EnqueuedAt: time.Now(),
	}
	f.order.Enqueue(key)
	f.pendingCount++
	return true
}

func matchesAny(candidate string, patterns []string) bool {
	for _, p := range patterns {
		if urlutil.MatchesPattern(candidate, p) {
			return true
		}
	}
	return false
}

// Next pops the oldest Pending entry, marks it InProgress, and returns it.
// Entries whose status changed since being queued (stale duplicates left
// behind by defensive re-enqueues) are skipped rather than returned.
func (f *Frontier) Next() (*FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.order.Size() > 0 {
		key, ok := f.order.Dequeue()
		if !ok {
			break
		}
		entry, exists := f.entries[key]
		if !exists || entry.Status != StatusPending {
			continue
		}
		entry.Status = StatusInProgress
		f.pendingCount--
		f.inProgressCount++
		return entry, true
	}
	return nil, false
}

// Complete marks canonicalURL's entry Complete.
func (f *Frontier) Complete(canonicalURL string) {
	f.transition(canonicalURL, StatusComplete, "")
}

// Fail marks canonicalURL's entry Failed with reason recorded for
// diagnostics.
func (f *Frontier) Fail(canonicalURL, reason string) {
	f.transition(canonicalURL, StatusFailed, reason)
}

// Skip marks canonicalURL's entry Skipped with reason recorded for
// diagnostics.
func (f *Frontier) Skip(canonicalURL, reason string) {
	f.transition(canonicalURL, StatusSkipped, reason)
}

func (f *Frontier) transition(canonicalURL string, status Status, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[canonicalURL]
	if !ok {
		return
	}
	if entry.Status == StatusInProgress {
		f.inProgressCount--
	}
	entry.Status = status
	entry.Err = reason
	entry.ProcessedAt = time.Now()
}

// Retry re-enqueues a Failed entry as Pending iff its retry count is below
// policy.MaxRetries, returning whether the retry was admitted.
func (f *Frontier) Retry(canonicalURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[canonicalURL]
	if !ok || entry.Status != StatusFailed {
		return false
	}
	if entry.RetryCount >= f.policy.MaxRetries {
		return false
	}
	entry.RetryCount++
	entry.Status = StatusPending
	entry.Err = ""
	f.order.Enqueue(canonicalURL)
	f.pendingCount++
	return true
}

// HasPending reports whether any entry is still Pending or InProgress.
func (f *Frontier) HasPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingCount > 0 || f.inProgressCount > 0
}

// Lookup returns the current snapshot of canonicalURL's entry, if any.
func (f *Frontier) Lookup(canonicalURL string) (FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[canonicalURL]
	if !ok {
		return FrontierEntry{}, false
	}
	return *entry, true
}

// Size returns the total number of entries ever admitted, regardless of
// status.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
