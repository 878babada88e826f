package cssassets

import (
	"net/url"
	"strings"

	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

type edit struct {
	start, end int
	text       string
}

// Rewrite substitutes every mapped url()/@import/image-set reference in css
// with toRoot+localPath, resolving each original reference against
// stylesheetURL first. References with no entry in mapping are left
// untouched, verbatim.
func Rewrite(css string, mapping map[string]string, toRoot string, stylesheetURL url.URL) string {
	lookup := func(raw string) (string, bool) {
		resolved := urlutil.Canonicalise(raw, &stylesheetURL)
		if resolved == nil {
			return "", false
		}
		localPath, ok := mapping[resolved.String()]
		return localPath, ok
	}

	var edits []edit

	for _, m := range importRe.FindAllStringSubmatchIndex(css, -1) {
		var raw, quote string
		usedURLForm := m[4] != -1
		if usedURLForm {
			quote = css[m[2]:m[3]]
			raw = css[m[4]:m[5]]
		} else {
			quote = css[m[6]:m[7]]
			raw = css[m[8]:m[9]]
		}
		localPath, ok := lookup(strings.TrimSpace(raw))
		if !ok {
			continue
		}
		replacement := toRoot + localPath
		var rewritten string
		if usedURLForm {
			rewritten = "@import url(" + quoteWith(quote, replacement) + ")"
		} else {
			rewritten = "@import " + quoteWith(quote, replacement)
		}
		edits = append(edits, edit{start: m[0], end: m[1], text: rewritten})
	}

	importSpans := make([][2]int, 0, len(edits))
	for _, e := range edits {
		importSpans = append(importSpans, [2]int{e.start, e.end})
	}

	for _, m := range urlFuncRe.FindAllStringSubmatchIndex(css, -1) {
		if withinAnyPair(m[0], m[1], importSpans) {
			continue
		}
		quote := css[m[2]:m[3]]
		raw := css[m[4]:m[5]]
		localPath, ok := lookup(strings.TrimSpace(raw))
		if !ok {
			continue
		}
		open := m[0] + strings.IndexByte(css[m[0]:m[1]], '(')
		funcName := css[leadingFuncStart(css, open):open]
		rewritten := funcName + "(" + quoteWith(quote, toRoot+localPath) + ")"
		edits = append(edits, edit{start: m[0], end: m[1], text: rewritten})
	}

	return applyEdits(css, edits)
}

func quoteWith(quote, value string) string {
	if quote == "" {
		quote = "'"
	}
	return quote + value + quote
}

func leadingFuncStart(css string, openParen int) int {
	i := openParen
	for i > 0 {
		c := css[i-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			i--
			continue
		}
		break
	}
	return i
}

func withinAnyPair(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start >= s[0] && end <= s[1] {
			return true
		}
	}
	return false
}

func applyEdits(css string, edits []edit) string {
	if len(edits) == 0 {
		return css
	}
	sortEdits(edits)
	var b strings.Builder
	cursor := 0
	for _, e := range edits {
		if e.start < cursor {
			continue
		}
		b.WriteString(css[cursor:e.start])
		b.WriteString(e.text)
		cursor = e.end
	}
	b.WriteString(css[cursor:])
	return b.String()
}

func sortEdits(edits []edit) {
	for i := 1; i < len(edits); i++ {
		for j := i; j > 0 && edits[j-1].start > edits[j].start; j-- {
			edits[j-1], edits[j] = edits[j], edits[j-1]
		}
	}
}
