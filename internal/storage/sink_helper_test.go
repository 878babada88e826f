package storage_test

import (
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
)

// recorderMock is a mock for archivelog.Sink.
type recorderMock struct {
	recordErrorCalled      bool
	recordErrorObservedAt  time.Time
	recordErrorPackageName string
	recordErrorAction      string
	recordErrorCause       archivelog.ErrorCause
	recordErrorDetails     string
	recordErrorAttrs       []archivelog.Attribute
	recordArtifactCalled   bool
	recordArtifactKind     archivelog.ArtifactKind
	recordArtifactPath     string
	recordArtifactAttrs    []archivelog.Attribute
}

func (m *recorderMock) RecordFetch(string, int, time.Duration, string, int, int) {}
func (m *recorderMock) RecordAssetFetch(string, int, time.Duration, int)         {}

func (m *recorderMock) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause archivelog.ErrorCause,
	details string,
	attrs []archivelog.Attribute,
) {
	m.recordErrorCalled = true
	m.recordErrorObservedAt = observedAt
	m.recordErrorPackageName = packageName
	m.recordErrorAction = action
	m.recordErrorCause = cause
	m.recordErrorDetails = details
	m.recordErrorAttrs = attrs
}

func (m *recorderMock) RecordArtifact(kind archivelog.ArtifactKind, path string, attrs []archivelog.Attribute) {
	m.recordArtifactCalled = true
	m.recordArtifactKind = kind
	m.recordArtifactPath = path
	m.recordArtifactAttrs = attrs
}

func (m *recorderMock) RecordEvent(archivelog.Level, string, []archivelog.Attribute) {}

// Reset clears all recorded state
func (m *recorderMock) Reset() {
	*m = recorderMock{}
}

// findAttrValue finds an attribute value by key in a slice of attributes
func findAttrValue(attrs []archivelog.Attribute, key archivelog.AttributeKey) string {
	for _, attr := range attrs {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}
