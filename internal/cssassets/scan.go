package cssassets

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/brackenforge/webarchiver/internal/archivelog"
	"github.com/brackenforge/webarchiver/pkg/failure"
	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

/*
No structural CSS parser is available, so both extraction and rewriting
run the same regex scan, which keeps extractor and rewriter behaving
identically on well-formed and malformed input alike.
*/

// urlFuncRe matches url(...), image-set(...), -webkit-image-set(...), and
// cross-fade(...), capturing the quoted-or-bare argument.
var urlFuncRe = regexp.MustCompile(`(?i)(?:url|image-set|-webkit-image-set|cross-fade)\(\s*(['"]?)([^'"()]+)['"]?\s*\)`)

// importRe matches @import, with or without url().
var importRe = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*(['"]?)([^'"()]+)['"]?\s*\)|(['"])([^'"]+)['"])`)

// Extractor walks a stylesheet's text for url()/@import/image-set
// occurrences, resolving each against the stylesheet's own URL.
type Extractor struct {
	recorder archivelog.Sink
}

func NewExtractor(recorder archivelog.Sink) Extractor {
	return Extractor{recorder: recorder}
}

func (e *Extractor) Extract(stylesheetURL url.URL, css string) (Result, failure.ClassifiedError) {
	result, err := e.extract(stylesheetURL, css)
	if err != nil {
		if e.recorder != nil {
			e.recorder.RecordError(
				time.Now(),
				"cssassets",
				"Extract",
				mapExtractionErrorToMetadataCause(err),
				err.Error(),
				[]archivelog.Attribute{archivelog.NewAttr(archivelog.AttrURL, stylesheetURL.String())},
			)
		}
		return Result{}, err
	}
	return result, nil
}

func (e *Extractor) extract(stylesheetURL url.URL, css string) (Result, *ExtractionError) {
	if strings.TrimSpace(css) == "" {
		return Result{}, &ExtractionError{Message: "no content", Cause: ErrCauseEmptyStylesheet}
	}

	seen := make(map[string]bool)
	var refs []Reference

	add := func(raw string, kind Kind) {
		if urlutil.ShouldSkip(raw) {
			return
		}
		resolved := urlutil.Canonicalise(raw, &stylesheetURL)
		if resolved == nil {
			return
		}
		key := resolved.String()
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, Reference{URL: key, Kind: kind})
	}

	importSpans := importRe.FindAllStringIndex(css, -1)
	for _, m := range importRe.FindAllStringSubmatch(css, -1) {
		if m[2] != "" {
			add(strings.TrimSpace(m[2]), KindImport)
		} else if m[4] != "" {
			add(strings.TrimSpace(m[4]), KindImport)
		}
	}

	for _, span := range urlFuncRe.FindAllStringIndex(css, -1) {
		if withinAny(span, importSpans) {
			continue
		}
		m := urlFuncRe.FindStringSubmatch(css[span[0]:span[1]])
		if m == nil {
			continue
		}
		add(strings.TrimSpace(m[2]), KindURL)
	}

	return Result{References: refs}, nil
}

func withinAny(span []int, spans [][]int) bool {
	for _, s := range spans {
		if span[0] >= s[0] && span[1] <= s[1] {
			return true
		}
	}
	return false
}
