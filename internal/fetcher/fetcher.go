// Package fetcher implements a bounded-concurrency, anti-detection HTTP
// client: header crafting, a cookie jar, manual redirect handling, retry
// ladders for 429/403/503 and network errors, bot-interstitial detection,
// and SSRF pre-flight/post-redirect checks.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/internal/ssrfguard"
	"github.com/brackenforge/webarchiver/pkg/failure"
	"github.com/brackenforge/webarchiver/pkg/limiter"
	"golang.org/x/net/publicsuffix"
)

// maxAttempts bounds the per-hop retry ladder (429/403/503/bot-interstitial
// and network-error backoff all share this ceiling).
const maxAttempts = 5

// hardHopLimit is a defensive ceiling on total redirect+retry iterations in
// a single Fetch call, independent of maxRedirects/maxAttempts, so a
// pathological server can never spin the loop forever.
const hardHopLimit = 200

// SSRFValidator matches ssrfguard.Validate's signature. Fetcher calls it
// before the first request and after every redirect hop.
type SSRFValidator func(ctx context.Context, rawURL string, allowedProtocols []ssrfguard.Protocol) ssrfguard.Result

// Fetcher is a bounded-concurrency HTTP client shared by every fetch of one
// crawl run. The zero value is not usable; use New.
type Fetcher struct {
	cfg      Config
	recorder archivelog.Sink

	httpClient *http.Client
	jar        *cookiejar.Jar
	sem        chan struct{}
	limiter    *limiter.ConcurrentRateLimiter
	ua         *uaRotator
	ssrfCheck  SSRFValidator

	mu      sync.Mutex
	pauseCh chan struct{}
	aborted atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Fetcher bounded by cfg.Concurrency in-flight requests.
// cfg.Cookies, if any, are seeded into the jar scoped to cfg.SeedURL.
func New(cfg Config, recorder archivelog.Sink) (*Fetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("fetcher: building cookie jar: %w", err)
	}
	if len(cfg.Cookies) > 0 {
		jar.SetCookies(&cfg.SeedURL, cfg.Cookies)
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	f := &Fetcher{
		cfg:        cfg,
		recorder:   recorder,
		httpClient: &http.Client{Jar: jar, CheckRedirect: neverFollow},
		jar:        jar,
		sem:        make(chan struct{}, concurrency),
		limiter:    limiter.NewConcurrentRateLimiter(),
		ua:         newUARotator(),
		ssrfCheck:  ssrfguard.Validate,
	}
	f.limiter.SetBaseDelay(cfg.delay())
	f.limiter.SetJitter(cfg.delay() / 2)
	return f, nil
}

// SetSSRFValidatorForTest overrides the SSRF pre-flight check. Production
// callers never need this; it exists so tests can point the fetcher at a
// loopback httptest.Server without tripping the guard's blocked-range check.
func (f *Fetcher) SetSSRFValidatorForTest(v SSRFValidator) {
	f.ssrfCheck = v
}

// neverFollow tells net/http to hand back the redirect response itself
// instead of following it, so Fetch can re-run the SSRF guard and enforce
// maxRedirects before the next hop.
func neverFollow(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Pause blocks pool admission for every subsequent Fetch call until Resume.
// In-flight requests are not interrupted.
func (f *Fetcher) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseCh == nil {
		f.pauseCh = make(chan struct{})
	}
}

// Resume releases any Fetch calls blocked in Pause.
func (f *Fetcher) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseCh != nil {
		close(f.pauseCh)
		f.pauseCh = nil
	}
}

// Abort sets the abort flag; every Fetch call in flight or newly submitted
// returns a non-retryable error at its next suspension point.
func (f *Fetcher) Abort() {
	f.aborted.Store(true)
	f.Resume()
}

// Drain blocks until every submitted Fetch call has returned.
func (f *Fetcher) Drain() {
	f.wg.Wait()
}

func (f *Fetcher) waitIfPaused(ctx context.Context) error {
	for {
		f.mu.Lock()
		ch := f.pauseCh
		f.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func jitteredSleep(base time.Duration) {
	if base <= 0 {
		return
	}
	factor := 0.5 + rand.Float64()
	time.Sleep(time.Duration(float64(base) * factor))
}

// Fetch retrieves rawURL, following redirects and retrying transient
// failures. referer is sent as the Referer header (falling back
// to the seed URL when empty).
func (f *Fetcher) Fetch(ctx context.Context, rawURL, referer string) (FetchResult, failure.ClassifiedError) {
	f.wg.Add(1)
	defer f.wg.Done()

	if f.aborted.Load() {
		return FetchResult{}, &Error{Code: ErrCodeUnknown, Message: "fetch aborted", Retryable: false}
	}

	host := hostOf(rawURL)
	if d := f.limiter.ResolveDelay(host); d > 0 {
		time.Sleep(d)
	}
	jitteredSleep(f.cfg.delay())

	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return FetchResult{}, &Error{Code: ErrCodeTimeout, Message: ctx.Err().Error(), Retryable: true}
	}
	defer func() { <-f.sem }()

	if err := f.waitIfPaused(ctx); err != nil {
		return FetchResult{}, &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true}
	}
	if f.aborted.Load() {
		return FetchResult{}, &Error{Code: ErrCodeUnknown, Message: "fetch aborted", Retryable: false}
	}

	result, err := f.drive(ctx, rawURL, referer)
	if result.FinalURL != "" {
		f.limiter.MarkLastFetchAsNow(hostOf(result.FinalURL))
	}
	return result, err
}

// drive runs the redirect+retry state machine for one logical fetch.
func (f *Fetcher) drive(ctx context.Context, rawURL, referer string) (FetchResult, failure.ClassifiedError) {
	start := time.Now()
	currentURL := rawURL
	currentReferer := referer
	if currentReferer == "" {
		currentReferer = f.cfg.SeedURL.String()
	}

	var redirectChain []string
	attempt := 0
	networkAttempt := 0

	fail := func(err *Error) (FetchResult, failure.ClassifiedError) {
		if f.recorder != nil {
			f.recorder.RecordError(time.Now(), "fetcher", "fetch", ErrorCause(err), err.Message,
				[]archivelog.Attribute{archivelog.NewAttr(archivelog.AttrURL, rawURL)})
		}
		return FetchResult{}, err
	}

	for hop := 0; hop < hardHopLimit; hop++ {
		if f.aborted.Load() {
			return FetchResult{}, &Error{Code: ErrCodeUnknown, Message: "fetch aborted", Retryable: false}
		}
		safe := f.ssrfCheck(ctx, currentURL, f.cfg.AllowedProtocols)
		if !safe.Safe() {
			return fail(&Error{Code: ErrCodeSSRF, Message: safe.Reason, Retryable: false})
		}

		target, err := url.Parse(currentURL)
		if err != nil {
			return fail(&Error{Code: ErrCodeUnknown, Message: err.Error(), Retryable: false})
		}

		reqCtx, cancel := context.WithTimeout(ctx, f.cfg.timeout())
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, currentURL, nil)
		if err != nil {
			cancel()
			return fail(&Error{Code: ErrCodeUnknown, Message: err.Error(), Retryable: false})
		}

		ua := f.cfg.UserAgent
		if ua == "" {
			ua = f.ua.Current()
		}
		cookieHeader := ""
		if cookies := f.jar.Cookies(target); len(cookies) > 0 {
			parts := make([]string, 0, len(cookies))
			for _, c := range cookies {
				parts = append(parts, c.Name+"="+c.Value)
			}
			cookieHeader = joinCookies(parts)
		}
		req.Header = buildHeaders(target, ua, currentReferer, cookieHeader, nil)

		resp, doErr := f.httpClient.Do(req)
		if doErr != nil {
			cancel()
			networkAttempt++
			if networkAttempt >= maxAttempts {
				return fail(&Error{Code: ErrCodeNetwork, Message: doErr.Error(), Retryable: false})
			}
			if networkAttempt >= 2 && f.cfg.UserAgent == "" {
				f.ua.Rotate()
			}
			backoff := time.Duration(1<<uint(networkAttempt)) * time.Second
			jitteredSleep(backoff)
			continue
		}

		if cookies := resp.Cookies(); len(cookies) > 0 {
			f.jar.SetCookies(target, cookies)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := parseRetryAfter(resp.Header, time.Second)
			drainAndClose(resp.Body)
			cancel()
			f.limiter.SetCrawlDelay(hostOf(currentURL), wait)
			f.limiter.MarkLastFetchAsNow(hostOf(currentURL))
			attempt++
			if attempt >= maxAttempts {
				return fail(&Error{Code: ErrCodeRateLimited, Message: "rate limited", Retryable: false})
			}
			time.Sleep(wait)
			if f.cfg.UserAgent == "" {
				f.ua.Rotate()
			}
			continue

		case resp.StatusCode == http.StatusForbidden:
			drainAndClose(resp.Body)
			cancel()
			attempt++
			if attempt >= maxAttempts {
				return fail(&Error{Code: ErrCodeUnknown, Message: "forbidden (403)", Retryable: false})
			}
			if f.cfg.UserAgent == "" {
				f.ua.Rotate()
			}
			jitteredSleep(f.cfg.delay())
			continue

		case resp.StatusCode == http.StatusServiceUnavailable:
			wait := parseRetryAfter(resp.Header, 5*time.Second)
			drainAndClose(resp.Body)
			cancel()
			attempt++
			if attempt >= maxAttempts {
				return fail(&Error{Code: ErrCodeUnknown, Message: "service unavailable (503)", Retryable: false})
			}
			time.Sleep(wait)
			continue

		case isRedirect(resp.StatusCode):
			loc := resp.Header.Get("Location")
			drainAndClose(resp.Body)
			cancel()
			if !f.cfg.FollowRedirects {
				return fail(&Error{Code: ErrCodeUnknown, Message: "redirect received, follow disabled", Retryable: false})
			}
			next := target.ResolveReference(mustParseRelative(loc))
			redirectChain = append(redirectChain, currentURL)
			if len(redirectChain) > f.cfg.MaxRedirects {
				return fail(&Error{Code: ErrCodeUnknown, Message: "redirect limit exceeded", Retryable: false})
			}
			currentReferer = currentURL
			currentURL = next.String()
			attempt = 0
			networkAttempt = 0
			continue

		default:
			body, sizeErr := f.readBody(resp)
			cancel()
			if sizeErr != nil {
				return fail(sizeErr)
			}

			contentType := resp.Header.Get("Content-Type")
			if resp.StatusCode == http.StatusOK && isHTML(contentType) && looksLikeInterstitial(body) {
				attempt++
				if attempt < maxAttempts {
					if f.cfg.UserAgent == "" {
						f.ua.Rotate()
					}
					jitteredSleep(f.cfg.delay())
					continue
				}
				// Best-effort only: retries exhausted, return what we have.
			}

			if f.recorder != nil {
				f.recorder.RecordFetch(currentURL, resp.StatusCode, time.Since(start), contentType, attempt+networkAttempt, 0)
			}

			return FetchResult{
				OriginalURL:   rawURL,
				FinalURL:      currentURL,
				StatusCode:    resp.StatusCode,
				ContentType:   contentType,
				Headers:       resp.Header.Clone(),
				Body:          body,
				RedirectChain: redirectChain,
				FetchedAt:     time.Now(),
			}, nil
		}
	}

	return fail(&Error{Code: ErrCodeUnknown, Message: "exceeded hop limit", Retryable: false})
}

// readBody enforces the declared and streamed maxFileSize ceilings.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, *Error) {
	defer resp.Body.Close()

	if f.cfg.MaxFileSize > 0 && resp.ContentLength > f.cfg.MaxFileSize {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1))
		return nil, &Error{Code: ErrCodeTooLarge, Message: "declared Content-Length exceeds maxFileSize", Retryable: false}
	}

	limit := f.cfg.MaxFileSize
	if limit <= 0 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Code: ErrCodeNetwork, Message: err.Error(), Retryable: false}
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Message: err.Error(), Retryable: false}
	}
	if int64(len(body)) > limit {
		return nil, &Error{Code: ErrCodeTooLarge, Message: "response body exceeds maxFileSize", Retryable: false}
	}
	return body, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func isHTML(contentType string) bool {
	for _, want := range []string{"text/html", "application/xhtml"} {
		if containsFold(contentType, want) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexFold(haystack, needle) >= 0
}

func indexFold(s, substr string) int {
	ls, lsub := len(s), len(substr)
	if lsub == 0 {
		return 0
	}
	for i := 0; i+lsub <= ls; i++ {
		if equalFold(s[i:i+lsub], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func mustParseRelative(ref string) *url.URL {
	u, err := url.Parse(ref)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}

func joinCookies(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}
