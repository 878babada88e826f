// Package htmlrewrite substitutes discovered URLs in a stored HTML document
// with relative local paths, using the same selector table htmlextract
// walked to find them in the first place.
package htmlrewrite

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/brackenforge/webarchiver/internal/cssassets"
	"github.com/brackenforge/webarchiver/internal/htmlextract"
	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

// Rewrite rewrites every selector/attribute value in htmlBytes that
// canonicalises to a key present in mapping, replacing it with
// toRoot(pageLocalPath) + localPath. Inline style attributes and <style>
// blocks are rewritten with the same url() substitution the stylesheet
// rewriter uses. Values
// with no mapping entry are left untouched.
func Rewrite(pageURL url.URL, htmlBytes []byte, mapping map[string]string, pageLocalPath string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return "", err
	}

	toRoot := ToRoot(pageLocalPath)
	base := effectiveBase(doc, pageURL)

	lookup := func(raw string) (string, bool) {
		resolved := urlutil.Canonicalise(raw, &base)
		if resolved == nil {
			return "", false
		}
		localPath, ok := mapping[resolved.String()]
		return localPath, ok
	}

	for _, rule := range htmlextract.Rules {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			val, ok := s.Attr(rule.Attr)
			if !ok || strings.TrimSpace(val) == "" {
				return
			}
			if rule.Srcset {
				s.SetAttr(rule.Attr, rewriteSrcset(val, toRoot, lookup))
				return
			}
			if localPath, found := lookup(val); found {
				s.SetAttr(rule.Attr, toRoot+localPath)
			}
		})
	}

	doc.Find("image, use").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"href", "xlink:href"} {
			val, ok := s.Attr(attr)
			if !ok || strings.TrimSpace(val) == "" {
				continue
			}
			if localPath, found := lookup(val); found {
				s.SetAttr(attr, toRoot+localPath)
			}
		}
	})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, lazy := range htmlextract.LazyAttrs {
			val, ok := s.Attr(lazy.Attr)
			if !ok || strings.TrimSpace(val) == "" {
				continue
			}
			if lazy.Srcset {
				s.SetAttr(lazy.Attr, rewriteSrcset(val, toRoot, lookup))
				continue
			}
			if localPath, found := lookup(val); found {
				s.SetAttr(lazy.Attr, toRoot+localPath)
			}
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		s.SetAttr("style", cssassets.Rewrite(style, mapping, toRoot, base))
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		rewritten := cssassets.Rewrite(s.Text(), mapping, toRoot, base)
		s.SetHtml(rewritten)
	})

	return goquery.OuterHtml(doc.Selection)
}

// ToRoot computes the "../"-repeated prefix from a stored file's local path
// back to the archive root, or "./" when the file already lives at the
// root.
func ToRoot(pageLocalPath string) string {
	segments := strings.Count(strings.Trim(pageLocalPath, "/"), "/")
	if segments == 0 {
		return "./"
	}
	return strings.Repeat("../", segments)
}

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

// rewriteSrcset splits on commas, rewrites each URL independently through
// lookup while preserving its trailing width/density descriptor, and
// rejoins with ", ".
func rewriteSrcset(raw, toRoot string, lookup func(string) (string, bool)) string {
	segments := strings.Split(raw, ",")
	rewritten := make([]string, 0, len(segments))
	for _, segment := range segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}
		candidateURL := fields[0]
		descriptor := strings.Join(fields[1:], " ")
		if localPath, found := lookup(candidateURL); found {
			candidateURL = toRoot + localPath
		}
		if descriptor != "" {
			rewritten = append(rewritten, candidateURL+" "+descriptor)
		} else {
			rewritten = append(rewritten, candidateURL)
		}
	}
	return strings.Join(rewritten, ", ")
}
