package pathreg

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/brackenforge/webarchiver/pkg/hashutil"
	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

// illegalChars lists filesystem characters no supported target OS accepts
// in a path segment.
const illegalChars = `<>:"|?*\`

// Registry is the canonicalURL<->localPath bijection. Register derives a
// path the first time a URL is seen and returns the existing one on every
// later call for the same canonical URL; Lookup never mutates. A zero-value
// Registry is not usable, use NewRegistry.
type Registry struct {
	mu        sync.Mutex
	urlToPath map[string]string
	pathToURL map[string]string
	usedPaths map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		urlToPath: make(map[string]string),
		pathToURL: make(map[string]string),
		usedPaths: make(map[string]bool),
	}
}

// Register canonicalises rawURL, returns its existing localPath if one was
// already assigned, and otherwise derives, deduplicates, and records a new
// one. Idempotent for the same canonical URL.
func (r *Registry) Register(rawURL string) (string, error) {
	canon := urlutil.Canonicalise(rawURL, nil)
	if canon == nil {
		return "", &Error{Message: "malformed URL: " + rawURL}
	}
	key := canon.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.urlToPath[key]; ok {
		return existing, nil
	}

	candidate := r.resolveCollision(derivePath(canon), key)
	r.urlToPath[key] = candidate
	r.pathToURL[candidate] = key
	r.usedPaths[candidate] = true
	return candidate, nil
}

// Lookup returns the localPath already registered for rawURL, if any.
func (r *Registry) Lookup(rawURL string) (string, bool) {
	canon := urlutil.Canonicalise(rawURL, nil)
	if canon == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.urlToPath[canon.String()]
	return p, ok
}

// Alias maps rawURL's canonical form to an already-derived localPath
// without deriving a new one, used for a redirect's original URL so a page
// that links to it resolves to the same stored file as the final URL. A
// no-op if rawURL is already registered under a different path.
func (r *Registry) Alias(rawURL, localPath string) error {
	canon := urlutil.Canonicalise(rawURL, nil)
	if canon == nil {
		return &Error{Message: "malformed URL: " + rawURL}
	}
	key := canon.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.urlToPath[key]; ok {
		return nil
	}
	r.urlToPath[key] = localPath
	return nil
}

// All returns a snapshot of every canonicalURL -> localPath mapping
// registered so far, for the final batch-rewrite pass.
func (r *Registry) All() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.urlToPath))
	for k, v := range r.urlToPath {
		out[k] = v
	}
	return out
}

// Relative walks from's parent directory and to's path to the longest
// common prefix, emitting "../" for the remainder of from and the tail of
// to.
func (r *Registry) Relative(from, to string) string {
	return urlutil.Relative(from, to)
}

// resolveCollision appends "_1", "_2", ... to candidate until it names a
// path not already claimed by a different canonical URL, falling back to a
// content-derived suffix once collisionSuffixLimit is exhausted. Must be
// called with r.mu held.
func (r *Registry) resolveCollision(candidate, key string) string {
	if !r.usedPaths[candidate] {
		return candidate
	}
	ext := fileExt(candidate)
	base := strings.TrimSuffix(candidate, ext)
	for i := 1; i <= collisionSuffixLimit; i++ {
		attempt := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !r.usedPaths[attempt] {
			return attempt
		}
	}
	sum, _ := hashutil.HashBytes([]byte(key), hashutil.HashAlgoBLAKE3)
	return fmt.Sprintf("%s_%s%s", base, sum[:8], ext)
}

// derivePath turns a canonical URL into a sanitised local path per the
// LocalPath rules: host-prefixed segments, directory/extension
// normalisation, query folding, and per-segment length capping.
func derivePath(u *url.URL) string {
	segments := []string{sanitizeSegment(u.Hostname())}
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		segments = append(segments, sanitizeSegment(decoded))
	}

	directoryStyle := strings.HasSuffix(u.Path, "/") || u.Path == ""
	if directoryStyle {
		segments = append(segments, "index.html")
	} else if !strings.Contains(segments[len(segments)-1], ".") {
		segments[len(segments)-1] += ".html"
	}

	last := len(segments) - 1
	if u.RawQuery != "" {
		digest, _ := hashutil.HashBytes([]byte(u.RawQuery), hashutil.HashAlgoBLAKE3)
		ext := fileExt(segments[last])
		base := strings.TrimSuffix(segments[last], ext)
		segments[last] = fmt.Sprintf("%s_%s%s", base, digest[:8], ext)
	}

	for i, seg := range segments {
		segments[i] = capSegment(seg)
	}

	return strings.Join(segments, "/")
}

// capSegment replaces a segment exceeding maxSegmentLength with a truncated
// base, a short content-derived hash, and the original extension.
func capSegment(seg string) string {
	if len(seg) <= maxSegmentLength {
		return seg
	}
	ext := fileExt(seg)
	base := strings.TrimSuffix(seg, ext)
	digest, _ := hashutil.HashBytes([]byte(seg), hashutil.HashAlgoBLAKE3)
	keep := maxSegmentLength - len(ext) - len(digest[:8]) - 1
	if keep < 0 {
		keep = 0
	}
	if keep > len(base) {
		keep = len(base)
	}
	return fmt.Sprintf("%s_%s%s", base[:keep], digest[:8], ext)
}

func fileExt(seg string) string {
	dot := strings.LastIndex(seg, ".")
	if dot == -1 {
		return ""
	}
	return seg[dot:]
}

// sanitizeSegment strips path-traversal fragments and illegal filesystem
// characters and trims leading/trailing dots and whitespace from a single
// path segment.
func sanitizeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "..", "")

	var b strings.Builder
	for _, r := range seg {
		switch {
		case strings.ContainsRune(illegalChars, r):
			b.WriteRune('_')
		case r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	trimmed := strings.TrimFunc(b.String(), func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
	if trimmed == "" {
		return "_"
	}
	return trimmed
}
