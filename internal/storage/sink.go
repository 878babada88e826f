package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
	"github.com/brackenforge/webarchiver/pkg/fileutil"
)

/*
Responsibilities
- Persist page and asset bytes under a per-job sandbox
- Reject any path that would escape the sandbox
- Enforce an aggregate size ceiling across the run
- Expose a read-only snapshot of write activity

Output characteristics
- Stable directory layout, one file per registered local path
- Overwrite-safe: writing the same relative path twice is legal, last
  writer wins (the path registry guarantees uniqueness per canonical URL,
  so a second write to the same path only happens for a genuine re-fetch
  or the final rewrite pass overwriting a page with its rewritten form).
  totalBytes tracks the size delta on every write, first-or-not, so the
  running total always reflects what's actually on disk.
*/

// Store is a sandboxed byte store rooted at baseDir. It never touches
// anything outside baseDir and enforces maxTotalSize across the run.
type Store interface {
	Write(relPath string, data []byte) (WriteResult, failure.ClassifiedError)
	Read(relPath string) ([]byte, failure.ClassifiedError)
	ListFiles() ([]string, failure.ClassifiedError)
	Stats() Stats
	Cleanup() failure.ClassifiedError
}

type LocalStore struct {
	baseDir      string
	maxTotalSize int64
	recorder     archivelog.Sink

	mu           sync.Mutex
	totalBytes   int64
	filesWritten map[string]int64
	directories  map[string]bool
}

// NewLocalStore creates the sandbox root (if missing) and returns a Store
// bounded by maxTotalSize bytes. maxTotalSize <= 0 means unbounded.
func NewLocalStore(baseDir string, maxTotalSize int64, recorder archivelog.Sink) (*LocalStore, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(baseDir); err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      baseDir,
		}
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: baseDir}
	}
	return &LocalStore{
		baseDir:      abs,
		maxTotalSize: maxTotalSize,
		recorder:     recorder,
		filesWritten: make(map[string]int64),
		directories:  make(map[string]bool),
	}, nil
}

// resolve joins relPath onto the sandbox root and rejects any result that
// escapes it via a string-prefix check performed after normalisation.
func (s *LocalStore) resolve(relPath string) (string, failure.ClassifiedError) {
	joined := filepath.Join(s.baseDir, relPath)
	cleaned := filepath.Clean(joined)
	if cleaned != s.baseDir && !strings.HasPrefix(cleaned, s.baseDir+string(filepath.Separator)) {
		return "", &StorageError{
			Message:   "path escapes sandbox: " + relPath,
			Retryable: false,
			Cause:     ErrCauseTraversal,
			Path:      relPath,
		}
	}
	return cleaned, nil
}

func (s *LocalStore) recordError(action string, relPath string, storageErr *StorageError) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordError(
		time.Now(),
		"storage",
		action,
		mapStorageErrorToMetadataCause(storageErr),
		storageErr.Error(),
		[]archivelog.Attribute{
			archivelog.NewAttr(archivelog.AttrWritePath, relPath),
			archivelog.NewAttr(archivelog.AttrPath, storageErr.Path),
		},
	)
}

func (s *LocalStore) Write(relPath string, data []byte) (WriteResult, failure.ClassifiedError) {
	fullPath, rerr := s.resolve(relPath)
	if rerr != nil {
		storageErr := rerr.(*StorageError)
		s.recordError("LocalStore.Write", relPath, storageErr)
		return WriteResult{}, storageErr
	}

	s.mu.Lock()
	oldSize, existed := s.filesWritten[relPath]
	delta := int64(len(data))
	if existed {
		delta -= oldSize
	}
	if s.maxTotalSize > 0 && s.totalBytes+delta > s.maxTotalSize {
		s.mu.Unlock()
		storageErr := &StorageError{
			Message:   "write would exceed maxTotalSize",
			Retryable: false,
			Cause:     ErrCauseSizeCeiling,
			Path:      relPath,
		}
		s.recordError("LocalStore.Write", relPath, storageErr)
		return WriteResult{}, storageErr
	}
	s.mu.Unlock()

	if err := fileutil.EnsureDir(filepath.Dir(fullPath)); err != nil {
		var fileErr *fileutil.FileError
		errors.As(err, &fileErr)
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCausePathError,
			Path:      filepath.Dir(fullPath),
		}
		s.recordError("LocalStore.Write", relPath, storageErr)
		return WriteResult{}, storageErr
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		storageErr := &StorageError{Message: err.Error(), Retryable: retryable, Cause: cause, Path: fullPath}
		s.recordError("LocalStore.Write", relPath, storageErr)
		return WriteResult{}, storageErr
	}

	s.mu.Lock()
	newSize := int64(len(data))
	if oldSize, existed := s.filesWritten[relPath]; existed {
		s.totalBytes += newSize - oldSize
	} else {
		s.totalBytes += newSize
	}
	s.filesWritten[relPath] = newSize
	for dir := filepath.Dir(relPath); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		s.directories[dir] = true
	}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordArtifact(artifactKindFor(relPath), relPath, []archivelog.Attribute{
			archivelog.NewAttr(archivelog.AttrWritePath, relPath),
		})
	}

	return NewWriteResult(relPath, len(data)), nil
}

func artifactKindFor(relPath string) archivelog.ArtifactKind {
	if strings.HasSuffix(relPath, ".html") || strings.HasSuffix(relPath, ".htm") {
		return archivelog.ArtifactPage
	}
	return archivelog.ArtifactAsset
}

func (s *LocalStore) Read(relPath string) ([]byte, failure.ClassifiedError) {
	fullPath, rerr := s.resolve(relPath)
	if rerr != nil {
		return nil, rerr
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		cause := ErrCauseNotFound
		if !errors.Is(err, fs.ErrNotExist) {
			cause = ErrCausePathError
		}
		return nil, &StorageError{Message: err.Error(), Retryable: false, Cause: cause, Path: fullPath}
	}
	return data, nil
}

func (s *LocalStore) ListFiles() ([]string, failure.ClassifiedError) {
	var files []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.baseDir, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: s.baseDir}
	}
	return files, nil
}

func (s *LocalStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewStats(len(s.filesWritten), s.totalBytes, len(s.directories))
}

func (s *LocalStore) Cleanup() failure.ClassifiedError {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: s.baseDir}
	}
	s.mu.Lock()
	s.totalBytes = 0
	s.filesWritten = make(map[string]int64)
	s.directories = make(map[string]bool)
	s.mu.Unlock()
	return nil
}
