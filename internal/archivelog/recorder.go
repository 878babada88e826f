package archivelog

import (
	"fmt"
	"sync"
	"time"
)

// Sink is the recording surface every pipeline package writes observability
// calls to: RecordFetch/RecordAssetFetch/RecordError/RecordArtifact, plus
// RecordEvent for the free-form progress/log stream.
type Sink interface {
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordEvent(level Level, message string, attrs []Attribute)
}

// eventBufferSize bounds the channel-backed progress stream. Once full the
// Recorder drops the oldest queued event to admit the new one, so a slow or
// absent consumer never backpressures the crawl itself.
const eventBufferSize = 256

// Recorder is the archivelog's concrete Sink: every record call appends to
// an in-memory log (for post-run auditability) and pushes an Event onto a
// bounded channel (for the live progress/log transport).
type Recorder struct {
	mu     sync.Mutex
	fetch  []FetchEvent
	errs   []ErrorRecord
	events chan Event
}

func NewRecorder() *Recorder {
	return &Recorder{
		events: make(chan Event, eventBufferSize),
	}
}

// Events returns the channel external consumers (CLI, job-management
// facade) read progress/log events from.
func (r *Recorder) Events() <-chan Event {
	return r.events
}

func (r *Recorder) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		select {
		case <-r.events:
		default:
		}
		select {
		case r.events <- ev:
		default:
		}
	}
}

func (r *Recorder) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.mu.Lock()
	r.fetch = append(r.fetch, FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	})
	r.mu.Unlock()

	r.emit(Event{
		Level:   LevelInfo,
		Message: fmt.Sprintf("fetched %s (%d)", fetchUrl, httpStatus),
		Context: []Attribute{
			NewAttr(AttrURL, fetchUrl),
			NewAttr(AttrHTTPStatus, fmt.Sprintf("%d", httpStatus)),
			NewAttr(AttrDepth, fmt.Sprintf("%d", crawlDepth)),
		},
	})
}

func (r *Recorder) RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int) {
	r.mu.Lock()
	r.fetch = append(r.fetch, FetchEvent{fetchUrl: fetchUrl, httpStatus: httpStatus, duration: duration, retryCount: retryCount})
	r.mu.Unlock()

	r.emit(Event{
		Level:   LevelInfo,
		Message: fmt.Sprintf("fetched asset %s (%d)", fetchUrl, httpStatus),
		Context: []Attribute{
			NewAttr(AttrAssetURL, fetchUrl),
			NewAttr(AttrHTTPStatus, fmt.Sprintf("%d", httpStatus)),
		},
	})
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute) {
	r.mu.Lock()
	r.errs = append(r.errs, ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: details,
		observedAt:  observedAt,
		attrs:       attrs,
	})
	r.mu.Unlock()

	r.emit(Event{
		Level:   LevelError,
		Message: fmt.Sprintf("%s.%s: %s", packageName, action, details),
		Context: attrs,
	})
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.emit(Event{
		Level:   LevelInfo,
		Message: fmt.Sprintf("wrote %s artifact %s", kind, path),
		Context: attrs,
	})
}

func (r *Recorder) RecordEvent(level Level, message string, attrs []Attribute) {
	r.emit(Event{Level: level, Message: message, Context: attrs})
}

// Snapshot returns the accumulated fetch/error log for post-run
// auditability. It never influences crawl control flow.
func (r *Recorder) Snapshot() ([]FetchEvent, []ErrorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fetch := make([]FetchEvent, len(r.fetch))
	copy(fetch, r.fetch)
	errs := make([]ErrorRecord, len(r.errs))
	copy(errs, r.errs)
	return fetch, errs
}
