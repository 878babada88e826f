package htmlextract

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

/*
Responsibilities

- Parse HTML into a DOM tree
- Walk a fixed (selector, attribute, kind) table plus the lazy-load and
  structured-data tables, collecting every URL-bearing construct
- Resolve each candidate against the effective base URL, skip what
  shouldSkip rejects, canonicalise, and de-duplicate within the call

The extractor never decides admission (scope, depth, file-type) — that is
the frontier's job. It only reports what it found.
*/

// Extractor parses a document and reports every URL-bearing construct
// covered by Rules, LazyAttrs, and the JSON-LD structured-data table.
type Extractor struct {
	recorder archivelog.Sink
}

func NewExtractor(recorder archivelog.Sink) Extractor {
	return Extractor{recorder: recorder}
}

// Extract walks htmlBytes, resolving every discovered URL against the
// effective base (the page's own URL, overridden by a parseable <base
// href> if present).
func (e *Extractor) Extract(pageURL url.URL, htmlBytes []byte) (Result, failure.ClassifiedError) {
	result, err := e.extract(pageURL, htmlBytes)
	if err != nil {
		if e.recorder != nil {
			e.recorder.RecordError(
				time.Now(),
				"htmlextract",
				"Extract",
				mapExtractionErrorToMetadataCause(err),
				err.Error(),
				[]archivelog.Attribute{archivelog.NewAttr(archivelog.AttrURL, pageURL.String())},
			)
		}
		return Result{}, err
	}
	return result, nil
}

func (e *Extractor) extract(pageURL url.URL, htmlBytes []byte) (Result, *ExtractionError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return Result{}, &ExtractionError{Message: err.Error(), Cause: ErrCauseNotHTML}
	}

	base := effectiveBase(doc, pageURL)
	seen := make(map[string]bool)
	var links []Link

	add := func(raw, tag, attr string, kind Kind) {
		if urlutil.ShouldSkip(raw) {
			return
		}
		resolved := urlutil.Canonicalise(raw, &base)
		if resolved == nil {
			return
		}
		key := resolved.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, Link{URL: key, Kind: kind, Tag: tag, Attr: attr})
	}

	addSrcset := func(raw, tag, attr string, kind Kind) {
		for _, candidate := range splitSrcset(raw) {
			add(candidate, tag, attr, kind)
		}
	}

	for _, rule := range Rules {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			val, ok := s.Attr(rule.Attr)
			if !ok || strings.TrimSpace(val) == "" {
				return
			}
			tag := goquery.NodeName(s)
			if rule.Srcset {
				addSrcset(val, tag, rule.Attr, rule.Kind)
			} else {
				add(val, tag, rule.Attr, rule.Kind)
			}
		})
	}

	doc.Find(svgRefSelectors).Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if v, ok := s.Attr("href"); ok {
			add(v, tag, "href", KindAsset)
		}
		if v, ok := s.Attr("xlink:href"); ok {
			add(v, tag, "xlink:href", KindAsset)
		}
	})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		for _, lazy := range LazyAttrs {
			v, ok := s.Attr(lazy.Attr)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if lazy.Srcset {
				addSrcset(v, tag, lazy.Attr, KindAsset)
			} else {
				add(v, tag, lazy.Attr, KindAsset)
			}
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, u := range extractCSSURLs(style) {
			add(u, goquery.NodeName(s), "style", KindAsset)
		}
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, u := range extractCSSURLs(s.Text()) {
			add(u, "style", "", KindAsset)
		}
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		for _, u := range extractStructuredDataURLs(s.Text()) {
			add(u, "script", "ld+json", KindAsset)
		}
	})

	return Result{Links: links}, nil
}

// effectiveBase returns the page URL unless the document carries a
// parseable <base href>, in which case that href (resolved against the
// page URL) takes precedence.
func effectiveBase(doc *goquery.Document, pageURL url.URL) url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	resolved := urlutil.Canonicalise(href, &pageURL)
	if resolved == nil {
		return pageURL
	}
	return *resolved
}

// splitSrcset splits a srcset/imagesrcset attribute on commas, taking the
// leading non-whitespace run of each segment as the URL and discarding the
// width/density descriptor (the rewriter reconstitutes the descriptor from
// the original string; the extractor only needs the URL to admit it).
func splitSrcset(raw string) []string {
	var urls []string
	for _, segment := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}
		urls = append(urls, fields[0])
	}
	return urls
}

var (
	cssURLFuncRe = regexp.MustCompile(`(?i)(?:url|image-set|-webkit-image-set)\(\s*(['"]?)([^'"()]+)['"]?\s*\)`)
	cssImportRe  = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*['"]?([^'")]+)['"]?\s*\)|['"]([^'"]+)['"])`)
)

// extractCSSURLs mines every url(...) / image-set(...) / @import occurrence
// from an inline style string or a <style> block's text, using its own
// regex scan patterned on the CSS extractor's (cross-fade() is not matched
// here).
func extractCSSURLs(css string) []string {
	var urls []string
	for _, m := range cssURLFuncRe.FindAllStringSubmatch(css, -1) {
		urls = append(urls, strings.TrimSpace(m[2]))
	}
	for _, m := range cssImportRe.FindAllStringSubmatch(css, -1) {
		if m[1] != "" {
			urls = append(urls, strings.TrimSpace(m[1]))
		} else if m[2] != "" {
			urls = append(urls, strings.TrimSpace(m[2]))
		}
	}
	return urls
}

// extractStructuredDataURLs parses a <script type="application/ld+json">
// body and collects the string (or nested .url) values for
// structuredDataKeys, recursing through arrays and objects up to
// maxStructuredDataDepth.
func extractStructuredDataURLs(raw string) []string {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}
	var urls []string
	walkStructuredData(doc, 0, &urls)
	return urls
}

func walkStructuredData(node interface{}, depth int, urls *[]string) {
	if depth > maxStructuredDataDepth {
		return
	}
	switch v := node.(type) {
	case []interface{}:
		for _, item := range v {
			walkStructuredData(item, depth+1, urls)
		}
	case map[string]interface{}:
		for _, key := range structuredDataKeys {
			val, ok := v[key]
			if !ok {
				continue
			}
			switch vv := val.(type) {
			case string:
				*urls = append(*urls, vv)
			case map[string]interface{}:
				if u, ok := vv["url"].(string); ok {
					*urls = append(*urls, u)
				}
			case []interface{}:
				for _, item := range vv {
					switch iv := item.(type) {
					case string:
						*urls = append(*urls, iv)
					case map[string]interface{}:
						if u, ok := iv["url"].(string); ok {
							*urls = append(*urls, u)
						}
					}
				}
			}
		}
		for _, val := range v {
			switch val.(type) {
			case map[string]interface{}, []interface{}:
				walkStructuredData(val, depth+1, urls)
			}
		}
	}
}
