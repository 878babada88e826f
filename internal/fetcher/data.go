package fetcher

import (
	"net/http"
	"net/url"
	"time"

	"github.com/brackenforge/webarchiver/internal/ssrfguard"
)

/*
Config is the subset of CrawlConfig the Fetcher needs, passed in by the
engine at construction so this package never depends on internal/config
directly (the same seam frontier.Policy uses).
*/
type Config struct {
	Concurrency      int
	DelayMs          int
	TimeoutMs        int
	MaxFileSize      int64
	UserAgent        string
	SeedURL          url.URL
	Cookies          []*http.Cookie
	FollowRedirects  bool
	MaxRedirects     int
	AllowedProtocols []ssrfguard.Protocol
}

func (c Config) delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// FetchParam is the HTTP-boundary request: the URL to fetch and the
// referer it was discovered from (empty for the seed).
type FetchParam struct {
	URL     string
	Referer string
}

// FetchResult is a successful fetch's bytes plus the metadata the engine
// needs to register the URL, classify content, and record provenance.
// OriginalURL and FinalURL differ only when redirects occurred; only
// these two endpoints of a redirect chain are later registered with the
// Rewriter, never the intermediate hops recorded in RedirectChain.
type FetchResult struct {
	OriginalURL   string
	FinalURL      string
	StatusCode    int
	ContentType   string
	Headers       http.Header
	Body          []byte
	RedirectChain []string
	FetchedAt     time.Time
}
