package fetcher_test

import (
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
)

// recorderMock is a mock for archivelog.Sink.
type recorderMock struct {
	fetchCalls []fetchCall
	errCalls   []errCall
}

type fetchCall struct {
	url        string
	status     int
	retryCount int
}

type errCall struct {
	packageName string
	action      string
	cause       archivelog.ErrorCause
	details     string
}

func (m *recorderMock) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	m.fetchCalls = append(m.fetchCalls, fetchCall{url: fetchUrl, status: httpStatus, retryCount: retryCount})
}

func (m *recorderMock) RecordAssetFetch(string, int, time.Duration, int) {}

func (m *recorderMock) RecordError(observedAt time.Time, packageName string, action string, cause archivelog.ErrorCause, details string, attrs []archivelog.Attribute) {
	m.errCalls = append(m.errCalls, errCall{packageName: packageName, action: action, cause: cause, details: details})
}

func (m *recorderMock) RecordArtifact(archivelog.ArtifactKind, string, []archivelog.Attribute) {}

func (m *recorderMock) RecordEvent(archivelog.Level, string, []archivelog.Attribute) {}
