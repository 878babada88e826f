package fetcher

import (
	"net/http"
	"net/url"

	"github.com/brackenforge/webarchiver/pkg/urlutil"
)

// acceptTable maps a URL's mimeCategory to the Accept header a real browser
// would send when requesting that kind of resource.
var acceptTable = map[urlutil.Category]string{
	urlutil.CategoryHTML:   "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	urlutil.CategoryCSS:    "text/css,*/*;q=0.1",
	urlutil.CategoryJS:     "*/*",
	urlutil.CategoryImages: "image/avif,image/webp,image/png,image/svg+xml,image/*,*/*;q=0.8",
	urlutil.CategoryFonts:  "font/woff2,font/woff,*/*;q=0.5",
}

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// buildHeaders assembles the header table: UA, content-aware Accept,
// language/encoding, connection/upgrade, Sec-Fetch-*/client-hint headers
// consistent with a modern browser, DNT, Referer, and the jar's Cookie
// header for this request. extra is merged last so caller-supplied custom
// headers win over every default.
func buildHeaders(target *url.URL, userAgent, referer, cookieHeader string, extra http.Header) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)

	ext := urlutil.Extension(target)
	accept, ok := acceptTable[urlutil.MimeCategory(ext)]
	if !ok {
		accept = defaultAccept
	}
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("DNT", "1")

	h.Set("Sec-Fetch-Dest", secFetchDest(urlutil.MimeCategory(ext)))
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Sec-Ch-Ua", `"Chromium";v="124", "Not(A:Brand";v="24", "Google Chrome";v="124"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)

	if referer != "" {
		h.Set("Referer", referer)
	}
	if cookieHeader != "" {
		h.Set("Cookie", cookieHeader)
	}

	for key, values := range extra {
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}
	return h
}

func secFetchDest(category urlutil.Category) string {
	switch category {
	case urlutil.CategoryHTML:
		return "document"
	case urlutil.CategoryCSS:
		return "style"
	case urlutil.CategoryJS:
		return "script"
	case urlutil.CategoryImages:
		return "image"
	case urlutil.CategoryFonts:
		return "font"
	default:
		return "empty"
	}
}
