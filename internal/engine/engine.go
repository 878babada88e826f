// Package engine is the sole control-plane authority of one crawl run: it
// owns the frontier and is the only component allowed to mutate it. Every
// other package here is a stateless (or self-contained) pipeline stage the
// Engine drives in a fixed order — fetch, store the original bytes,
// extract, enqueue discovered links, and once the frontier drains, rewrite
// every stored HTML/CSS file in place against the final URL-to-local-path
// mapping.
package engine

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/internal/config"
	"github.com/brackenforge/webarchiver/internal/cssassets"
	"github.com/brackenforge/webarchiver/internal/fetcher"
	"github.com/brackenforge/webarchiver/internal/frontier"
	"github.com/brackenforge/webarchiver/internal/htmlextract"
	"github.com/brackenforge/webarchiver/internal/htmlrewrite"
	"github.com/brackenforge/webarchiver/internal/pathreg"
	"github.com/brackenforge/webarchiver/internal/robots"
	"github.com/brackenforge/webarchiver/internal/storage"
	"github.com/brackenforge/webarchiver/pkg/failure"
)

// Fetcher is the subset of *fetcher.Fetcher the Engine drives. An
// interface seam so tests can inject a stub instead of making real
// network calls.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, referer string) (fetcher.FetchResult, failure.ClassifiedError)
	Pause()
	Resume()
	Abort()
	Drain()
}

// Robot is the subset of robots.CachedRobot the Engine consults before
// admitting a page fetch.
type Robot interface {
	Init(userAgent string)
	Decide(u url.URL) (robots.Decision, *robots.RobotsError)
}

// Engine drives one archive run end to end. The zero value is not usable;
// use New or NewWithDeps.
type Engine struct {
	cfg       config.Config
	frontier  *frontier.Frontier
	fetcher   Fetcher
	store     storage.Store
	registry  *pathreg.Registry
	robot     Robot
	htmlExt   htmlextract.Extractor
	cssExt    cssassets.Extractor
	recorder  *archivelog.Recorder

	mu         sync.Mutex
	status     Status
	pagesDone  int
	assetsDone int
	errs       []string
	rewrites   []rewriteEntry
	startedAt  time.Time
	result     Result

	pauseCh chan struct{}
	cancel  context.CancelFunc

	done chan struct{}
}

// New builds an Engine wired to concrete collaborators constructed from
// cfg: every collaborator is built here, once, and nothing outside this
// function knows how they were assembled.
func New(cfg config.Config) (*Engine, error) {
	recorder := archivelog.NewRecorder()

	store, err := storage.NewLocalStore(cfg.OutputDir(), cfg.MaxTotalSize(), recorder)
	if err != nil {
		return nil, &Error{Message: err.Error(), Cause: ErrCauseStorageInit}
	}

	fetchCfg := fetcher.Config{
		Concurrency:      cfg.Concurrency(),
		DelayMs:          cfg.DelayMs(),
		TimeoutMs:        cfg.TimeoutMs(),
		MaxFileSize:      cfg.MaxFileSize(),
		UserAgent:        cfg.UserAgent(),
		SeedURL:          cfg.SeedURL(),
		Cookies:          cfg.Cookies(),
		FollowRedirects:  cfg.FollowRedirects(),
		MaxRedirects:     cfg.MaxRedirects(),
		AllowedProtocols: cfg.AllowedProtocols(),
	}
	f, err := fetcher.New(fetchCfg, recorder)
	if err != nil {
		return nil, &Error{Message: err.Error(), Cause: ErrCauseStorageInit}
	}

	robot := robots.NewCachedRobot(recorder)

	return NewWithDeps(cfg, store, f, &robot, recorder), nil
}

// NewWithDeps is the dependency-injected constructor tests use to swap in
// fakes for Fetcher/Store/Robot. recorder must be the same one the
// collaborators were built with, so their errors surface on the same
// Events stream.
func NewWithDeps(cfg config.Config, store storage.Store, f Fetcher, robot Robot, recorder *archivelog.Recorder) *Engine {
	return &Engine{
		cfg:      cfg,
		frontier: frontier.NewFrontier(cfg.SeedURL().String(), cfg.FrontierPolicy()),
		fetcher:  f,
		store:    store,
		registry: pathreg.NewRegistry(),
		robot:    robot,
		htmlExt:  htmlextract.NewExtractor(recorder),
		cssExt:   cssassets.NewExtractor(recorder),
		recorder: recorder,
		status:   StatusPending,
		done:     make(chan struct{}),
	}
}

// Events returns the channel external consumers (the CLI) read
// progress/log events from.
func (e *Engine) Events() <-chan archivelog.Event {
	return e.recorder.Events()
}

// Done closes once the run has reached a terminal state (Complete,
// Failed, or Cancelled).
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Storage exposes the run's Store, e.g. for a caller that wants to list or
// read written files after completion.
func (e *Engine) Storage() storage.Store {
	return e.store
}

// Errors returns every recoverable-error message recorded so far.
func (e *Engine) Errors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.errs))
	copy(out, e.errs)
	return out
}

// Progress returns a point-in-time snapshot, safe to call from any
// goroutine at any time, including before Start or after Done closes.
func (e *Engine) Progress() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.store.Stats()
	elapsed := time.Duration(0)
	if !e.startedAt.IsZero() {
		elapsed = time.Since(e.startedAt)
	}
	return Snapshot{
		Status:       e.status,
		PagesDone:    e.pagesDone,
		AssetsDone:   e.assetsDone,
		ErrorCount:   len(e.errs),
		QueueSize:    e.frontier.Size(),
		BytesWritten: stats.TotalBytes(),
		Elapsed:      elapsed,
	}
}

// Result returns the terminal outcome of the run. Only meaningful after
// Done closes; before that it reports the zero Result.
func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) getStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start seeds the frontier, optionally primes robots.txt handling, and
// launches the bounded worker pool in the background. It returns as soon
// as the seed is admitted; the run itself completes asynchronously and
// Done signals its end.
func (e *Engine) Start(ctx context.Context) failure.ClassifiedError {
	e.mu.Lock()
	if e.status != StatusPending {
		e.mu.Unlock()
		return e.fail(&Error{Message: "engine already started", Cause: ErrCauseStorageInit})
	}
	e.startedAt = time.Now()
	e.status = StatusRunning
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.cfg.RespectRobotsTxt() {
		e.robot.Init(e.cfg.UserAgent())
	}

	seed := e.cfg.SeedURL()
	if !e.frontier.AddPage(seed.String(), "", 0) {
		cancel()
		return e.fail(&Error{Message: "seed URL rejected by frontier policy", Cause: ErrCauseNoSeed})
	}

	concurrency := e.cfg.Concurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	go e.run(runCtx, concurrency)
	return nil
}

// Pause blocks every worker's next frontier.Next() call until Resume.
// In-flight fetches are allowed to finish.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRunning {
		return
	}
	e.status = StatusPaused
	if e.pauseCh == nil {
		e.pauseCh = make(chan struct{})
	}
	e.fetcher.Pause()
}

// Resume releases workers blocked in Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPaused {
		return
	}
	e.status = StatusRunning
	if e.pauseCh != nil {
		close(e.pauseCh)
		e.pauseCh = nil
	}
	e.fetcher.Resume()
}

// Cancel stops the run as soon as in-flight work observes the cancelled
// context. The final Result's Success is false for a cancelled run.
func (e *Engine) Cancel() {
	e.mu.Lock()
	wasPaused := e.status == StatusPaused
	e.status = StatusCancelled
	pauseCh := e.pauseCh
	e.pauseCh = nil
	e.mu.Unlock()

	if wasPaused && pauseCh != nil {
		close(pauseCh)
	}
	e.fetcher.Abort()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) waitIfPaused(ctx context.Context) bool {
	e.mu.Lock()
	ch := e.pauseCh
	e.mu.Unlock()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// run drives the bounded worker pool to exhaustion, then performs the
// final rewrite pass (skipped for a cancelled run) and closes done. The
// final status and Result are computed once every worker has returned,
// whether the frontier drained or the run was cancelled.
func (e *Engine) run(ctx context.Context, concurrency int) {
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}
	wg.Wait()
	e.fetcher.Drain()

	cancelled := e.getStatus() == StatusCancelled
	if !cancelled {
		e.rewriteStored()
	}

	e.mu.Lock()
	success := !cancelled && len(e.errs) == 0
	finalStatus := StatusComplete
	switch {
	case cancelled:
		finalStatus = StatusCancelled
	case !success:
		finalStatus = StatusFailed
	}
	e.status = finalStatus
	stats := e.store.Stats()
	result := Result{
		Success:  success,
		Pages:    e.pagesDone,
		Assets:   e.assetsDone,
		Bytes:    stats.TotalBytes(),
		Errors:   append([]string(nil), e.errs...),
		Duration: time.Since(e.startedAt),
	}
	e.result = result
	e.mu.Unlock()

	e.recorder.RecordEvent(archivelog.LevelInfo, "crawl finished", nil)
	close(e.done)
}

// worker repeatedly dequeues and processes frontier entries until the
// frontier drains or the run is cancelled.
func (e *Engine) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !e.waitIfPaused(ctx) {
			return
		}
		if e.getStatus() == StatusCancelled {
			return
		}

		entry, ok := e.frontier.Next()
		if !ok {
			if !e.frontier.HasPending() {
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}

		e.process(ctx, entry)
	}
}

// process runs one frontier entry through fetch -> store -> extract ->
// enqueue.
func (e *Engine) process(ctx context.Context, entry *frontier.FrontierEntry) {
	if entry.Kind == frontier.KindPage && e.cfg.RespectRobotsTxt() {
		parsed, err := url.Parse(entry.Canonical)
		if err == nil {
			decision, robotsErr := e.robot.Decide(*parsed)
			if robotsErr != nil {
				e.recordErr(robotsErr.Error())
			} else if !decision.Allowed {
				e.frontier.Skip(entry.Canonical, string(decision.Reason))
				return
			}
		}
	}

	result, fetchErr := e.fetcher.Fetch(ctx, entry.Canonical, entry.Parent)
	if fetchErr != nil {
		e.recordErr(fetchErr.Error())
		if fetchErr.Severity() == failure.SeverityFatal {
			e.frontier.Fail(entry.Canonical, fetchErr.Error())
			return
		}
		e.frontier.Fail(entry.Canonical, fetchErr.Error())
		e.frontier.Retry(entry.Canonical)
		return
	}

	localPath, err := e.registry.Register(result.FinalURL)
	if err != nil {
		e.recordErr(err.Error())
		e.frontier.Fail(entry.Canonical, err.Error())
		return
	}
	if result.FinalURL != result.OriginalURL {
		e.registry.Alias(result.OriginalURL, localPath)
	}

	if _, werr := e.store.Write(localPath, result.Body); werr != nil {
		e.recordErr(werr.Error())
		e.frontier.Fail(entry.Canonical, werr.Error())
		return
	}

	pageURL, perr := url.Parse(result.FinalURL)
	if perr == nil {
		category := leadingMediaType(result.ContentType)
		switch category {
		case "text/html", "application/xhtml+xml":
			e.addRewrite(result.FinalURL, localPath, true)
			e.extractHTML(*pageURL, result.Body, entry.Depth)
		case "text/css":
			e.addRewrite(result.FinalURL, localPath, false)
			e.extractCSS(*pageURL, result.Body, entry.Depth)
		}
	}

	e.frontier.Complete(entry.Canonical)

	e.mu.Lock()
	if entry.Kind == frontier.KindPage {
		e.pagesDone++
	} else {
		e.assetsDone++
	}
	e.mu.Unlock()
}

func (e *Engine) extractHTML(pageURL url.URL, body []byte, depth int) {
	result, err := e.htmlExt.Extract(pageURL, body)
	if err != nil {
		e.recordErr(err.Error())
		return
	}
	for _, link := range result.Links {
		if link.Kind == htmlextract.KindAsset {
			e.frontier.AddAsset(link.URL, pageURL.String(), depth+1)
		} else {
			e.frontier.AddPage(link.URL, pageURL.String(), depth+1)
		}
	}
}

func (e *Engine) extractCSS(stylesheetURL url.URL, body []byte, depth int) {
	result, err := e.cssExt.Extract(stylesheetURL, string(body))
	if err != nil {
		e.recordErr(err.Error())
		return
	}
	for _, ref := range result.References {
		e.frontier.AddAsset(ref.URL, stylesheetURL.String(), depth+1)
	}
}

func (e *Engine) addRewrite(canonicalURL, localPath string, isHTML bool) {
	e.mu.Lock()
	e.rewrites = append(e.rewrites, rewriteEntry{canonicalURL: canonicalURL, localPath: localPath, isHTML: isHTML})
	e.mu.Unlock()
}

// fail records an Engine-level setup error through the same
// map<Package>ErrorToMetadataCause shape every other package uses, then
// returns it to the caller.
func (e *Engine) fail(err *Error) *Error {
	e.recorder.RecordError(time.Now(), "engine", "Start", mapEngineErrorToMetadataCause(err), err.Error(), nil)
	return err
}

func (e *Engine) recordErr(msg string) {
	e.mu.Lock()
	e.errs = append(e.errs, msg)
	e.mu.Unlock()
}

// rewriteStored runs the final pass over every HTML/CSS file written
// during the crawl, substituting every discovered URL for its local path
// now that the full canonicalURL -> localPath mapping is known: store
// original bytes, then batch-rewrite in place.
func (e *Engine) rewriteStored() {
	mapping := e.registry.All()

	e.mu.Lock()
	entries := append([]rewriteEntry(nil), e.rewrites...)
	e.mu.Unlock()

	for _, entry := range entries {
		content, rerr := e.store.Read(entry.localPath)
		if rerr != nil {
			e.recordErr(rerr.Error())
			continue
		}
		pageURL, perr := url.Parse(entry.canonicalURL)
		if perr != nil {
			e.recordErr(perr.Error())
			continue
		}

		var rewritten string
		if entry.isHTML {
			out, herr := htmlrewrite.Rewrite(*pageURL, content, mapping, entry.localPath)
			if herr != nil {
				e.recordErr(herr.Error())
				continue
			}
			rewritten = out
		} else {
			toRoot := htmlrewrite.ToRoot(entry.localPath)
			rewritten = cssassets.Rewrite(string(content), mapping, toRoot, *pageURL)
		}

		if _, werr := e.store.Write(entry.localPath, []byte(rewritten)); werr != nil {
			e.recordErr(werr.Error())
		}
	}
}

// leadingMediaType strips parameters (e.g. "; charset=utf-8") from a
// Content-Type header and lowercases the remaining media type.
func leadingMediaType(contentType string) string {
	mt := contentType
	if idx := strings.IndexByte(mt, ';'); idx >= 0 {
		mt = mt[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
