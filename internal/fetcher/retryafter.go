package fetcher

import (
	"net/http"
	"strconv"
	"time"
)

// parseRetryAfter reads a Retry-After header in either of its two legal
// forms (an integer number of seconds, or an HTTP-date) and returns the
// wait duration, falling back to def when the header is absent or
// unparseable.
func parseRetryAfter(h http.Header, def time.Duration) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0
		}
		return d
	}
	return def
}
