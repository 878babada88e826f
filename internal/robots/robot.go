package robots

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// CachedRobot composes a RobotsFetcher, the response-to-ruleSet mapper, and
// a per-host rule cache into the single Decide call the engine consults
// before admitting a URL. The zero value is comparable (all fields are
// either nil or zero-length until Init runs) but not usable for decisions.
type CachedRobot struct {
	recorder  archivelog.Sink
	userAgent string
	fetcher   *RobotsFetcher
	cache     cache.Cache
}

// NewCachedRobot builds a CachedRobot that reports fetch/decision failures
// to recorder. Call Init or InitWithCache before Decide.
func NewCachedRobot(recorder archivelog.Sink) CachedRobot {
	return CachedRobot{recorder: recorder}
}

// Init configures userAgent and an in-memory rule cache shared for the run.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache configures userAgent and a caller-supplied Cache
// implementation (nil disables caching).
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.cache = c
	r.fetcher = NewRobotsFetcher(userAgent, c)
}

// Decide fetches (or reuses the cached) robots.txt for u's host and
// evaluates the allow/disallow rules against u.Path. A fetch failure is
// recorded via the configured Sink and returned as a *RobotsError;
// callers should treat that as non-blocking and allow the URL.
func (r *CachedRobot) Decide(u url.URL) (Decision, *RobotsError) {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	result, err := r.fetcher.Fetch(context.Background(), scheme, u.Host)
	if err != nil {
		if r.recorder != nil {
			r.recorder.RecordError(
				time.Now(),
				"robots",
				"Decide",
				mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]archivelog.Attribute{archivelog.NewAttr(archivelog.AttrURL, u.String())},
			)
		}
		return Decision{}, err
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
	return decide(u, rs), nil
}

func decide(u url.URL, rs ruleSet) Decision {
	if !rs.hasGroups {
		return Decision{Url: u, Allowed: true, Reason: EmptyRuleSet, CrawlDelay: rs.crawlDelay}
	}
	if !rs.matchedGroup {
		return Decision{Url: u, Allowed: true, Reason: UserAgentNotMatched, CrawlDelay: rs.crawlDelay}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	bestAllow := longestMatch(path, rs.allowRules)
	bestDisallow := longestMatch(path, rs.disallowRules)

	if bestAllow == -1 && bestDisallow == -1 {
		return Decision{Url: u, Allowed: true, Reason: NoMatchingRules, CrawlDelay: rs.crawlDelay}
	}
	if bestAllow >= bestDisallow {
		return Decision{Url: u, Allowed: true, Reason: AllowedByRobots, CrawlDelay: rs.crawlDelay}
	}
	return Decision{Url: u, Allowed: false, Reason: DisallowedByRobots, CrawlDelay: rs.crawlDelay}
}

// longestMatch returns the length of the most specific (longest) pattern
// among rules that match path, or -1 if none match.
func longestMatch(path string, rules []pathRule) int {
	best := -1
	for _, rule := range rules {
		if matchesRobotsPattern(path, rule.prefix) && len(rule.prefix) > best {
			best = len(rule.prefix)
		}
	}
	return best
}

// matchesRobotsPattern implements the standard robots.txt pattern algebra:
// "*" matches any run of characters, a trailing "$" anchors the match to
// the end of the path, and every other character is literal. Without a
// trailing "$" the pattern behaves as a prefix match.
func matchesRobotsPattern(path, pattern string) bool {
	if pattern == "" {
		return false
	}
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '*':
			b.WriteString(".*")
		case c == '$' && i == len(pattern)-1:
			b.WriteString("$")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}
