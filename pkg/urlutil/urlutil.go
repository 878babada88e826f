// Package urlutil provides the pure URL functions shared by the frontier,
// path registry, extractor, and rewriter: canonicalisation, scope/pattern
// matching, and extension/MIME classification.
package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// Scope enumerates the admission predicates CrawlConfig can select.
type Scope int

const (
	ScopeSameHost Scope = iota
	ScopeSameDomain
	ScopeSubdomains
	ScopeCustom
)

// Category is the fixed mimeCategory table's output alphabet.
type Category string

const (
	CategoryHTML      Category = "html"
	CategoryCSS       Category = "css"
	CategoryJS        Category = "js"
	CategoryImages    Category = "images"
	CategoryFonts     Category = "fonts"
	CategoryMedia     Category = "media"
	CategoryDocuments Category = "documents"
	CategoryOther     Category = "other"
)

// Canonicalise resolves rawURL against base (if non-nil), lowercases scheme
// and host, drops default ports, strips a trailing slash from non-root
// paths, sorts query parameters, and removes the fragment. It returns nil on
// any parse failure, matching the contract's "returns null on parse
// failure."
//
// Canonicalise is idempotent: Canonicalise(Canonicalise(u)) == Canonicalise(u).
func Canonicalise(rawURL string, base *url.URL) *url.URL {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}

	canonical := *parsed
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	canonical.RawQuery = sortQuery(canonical.RawQuery)
	canonical.ForceQuery = false

	canonical.Fragment = ""
	canonical.RawFragment = ""

	return &canonical
}

// sortQuery reorders a raw query string's key=value pairs lexicographically
// by their full encoded form, preserving repeated keys' relative order
// (stable sort) instead of dropping the query entirely.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })
	return strings.Join(pairs, "&")
}

// registrableSuffixes lists the second-level public-suffix labels whose
// registrable domain spans three labels instead of two (e.g. "co.uk",
// "example.co.jp").
var registrableSuffixes = map[string]bool{
	"co": true, "com": true, "org": true, "net": true, "gov": true, "edu": true, "ac": true,
}

// registrableDomain returns the apex of a hostname: the last two labels, or
// the last three when the penultimate label is a known second-level public
// suffix.
func registrableDomain(host string) string {
	host = lowerASCII(stripPort(host))
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	if len(labels) >= 3 && registrableSuffixes[labels[len(labels)-2]] {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i != -1 {
		return host[:i]
	}
	return host
}

// InScope reports whether candidate is admissible relative to seed under
// the given scope. customDomains is consulted only for ScopeCustom.
func InScope(candidate, seed *url.URL, scope Scope, customDomains []string) bool {
	if candidate == nil || seed == nil {
		return false
	}
	candidateHost := lowerASCII(stripPort(candidate.Host))
	seedHost := lowerASCII(stripPort(seed.Host))

	switch scope {
	case ScopeSameHost:
		return candidateHost == seedHost
	case ScopeSameDomain:
		return registrableDomain(candidateHost) == registrableDomain(seedHost)
	case ScopeSubdomains:
		seedApex := registrableDomain(seedHost)
		if registrableDomain(candidateHost) != seedApex {
			return false
		}
		return candidateHost == seedApex || strings.HasSuffix(candidateHost, "."+seedApex)
	case ScopeCustom:
		for _, d := range customDomains {
			if candidateHost == lowerASCII(stripPort(d)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchesPattern reports whether urlString matches glob, where "*" expands
// to ".*" and "?" expands to ".", anchored and case-insensitive.
func MatchesPattern(urlString, glob string) bool {
	re := globToRegexp(glob)
	return re.MatchString(urlString)
}

// Extension returns the lowercased suffix after the last "." in the URL
// path, or "" if there is none or the dot precedes a "/".
func Extension(u *url.URL) string {
	if u == nil {
		return ""
	}
	path := u.Path
	slash := strings.LastIndex(path, "/")
	dot := strings.LastIndex(path, ".")
	if dot == -1 || dot < slash {
		return ""
	}
	return lowerASCII(path[dot+1:])
}

// mimeTable is the fixed extension→category mapping consulted by
// MimeCategory.
var mimeTable = map[string]Category{
	"html": CategoryHTML, "htm": CategoryHTML, "xhtml": CategoryHTML,
	"css": CategoryCSS,
	"js":  CategoryJS, "mjs": CategoryJS, "cjs": CategoryJS,
	"png": CategoryImages, "jpg": CategoryImages, "jpeg": CategoryImages,
	"gif": CategoryImages, "svg": CategoryImages, "webp": CategoryImages,
	"avif": CategoryImages, "ico": CategoryImages, "bmp": CategoryImages,
	"woff": CategoryFonts, "woff2": CategoryFonts, "ttf": CategoryFonts,
	"otf": CategoryFonts, "eot": CategoryFonts,
	"mp4": CategoryMedia, "webm": CategoryMedia, "ogg": CategoryMedia,
	"mp3": CategoryMedia, "wav": CategoryMedia, "m4a": CategoryMedia,
	"mov": CategoryMedia, "avi": CategoryMedia,
	"pdf": CategoryDocuments, "doc": CategoryDocuments, "docx": CategoryDocuments,
	"xls": CategoryDocuments, "xlsx": CategoryDocuments, "ppt": CategoryDocuments,
	"pptx": CategoryDocuments, "txt": CategoryDocuments, "csv": CategoryDocuments,
}

// MimeCategory classifies an extension (as returned by Extension) into the
// fixed alphabet of categories, defaulting to CategoryOther.
func MimeCategory(ext string) Category {
	if c, ok := mimeTable[lowerASCII(ext)]; ok {
		return c
	}
	return CategoryOther
}

// ShouldSkip reports whether rawURL is a scheme the crawler never follows:
// data:, blob:, javascript:, mailto:, tel:, sms:, a pure fragment, or empty.
func ShouldSkip(rawURL string) bool {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return true
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	lower := lowerASCII(trimmed)
	for _, prefix := range []string{"data:", "blob:", "javascript:", "mailto:", "tel:", "sms:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Relative computes the "../"-walking relative path from the directory
// containing "from" to "to", used by the rewriter's toRoot/relative-path
// calculations. Both paths are slash-separated and use the last segment of
// "from" only to establish its containing directory.
func Relative(from, to string) string {
	fromSegs := splitPath(fromDir(from))
	toSegs := splitPath(to)

	common := 0
	for common < len(fromSegs) && common < len(toSegs) && fromSegs[common] == toSegs[common] {
		common++
	}

	var parts []string
	for i := common; i < len(fromSegs); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toSegs[common:]...)

	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

func fromDir(path string) string {
	if i := strings.LastIndex(path, "/"); i != -1 {
		return path[:i]
	}
	return ""
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// lowerASCII converts ASCII characters to lowercase without allocating when
// the string is already lowercase.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path, leaving root "/" alone.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
