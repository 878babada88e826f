package htmlextract

// Rule is one (selector, attribute, kind) triple the extractor's single
// traversal consults. Rules are data, not control flow: adding a new
// link-bearing construct means appending a row here, not a new branch in
// the walker.
type Rule struct {
	Selector string
	Attr     string
	Srcset   bool
	Kind     Kind
}

// Rules is the fixed table of URL-bearing constructs the extractor looks
// for in every document.
//
//nolint:gochecknoglobals // constant lookup table
var Rules = []Rule{
	// Hyperlinks and framed documents
	{Selector: "a[href]", Attr: "href", Kind: KindPage},
	{Selector: "iframe[src]", Attr: "src", Kind: KindPage},
	{Selector: "frame[src]", Attr: "src", Kind: KindPage},

	// Stylesheets
	{Selector: `link[rel~="stylesheet"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="preload"][as="style"][href]`, Attr: "href", Kind: KindAsset},

	// Scripts
	{Selector: "script[src]", Attr: "src", Kind: KindAsset},

	// Images
	{Selector: "img[src]", Attr: "src", Kind: KindAsset},
	{Selector: "img[srcset]", Attr: "srcset", Srcset: true, Kind: KindAsset},
	{Selector: "picture source[srcset]", Attr: "srcset", Srcset: true, Kind: KindAsset},
	{Selector: "source[srcset]", Attr: "srcset", Srcset: true, Kind: KindAsset},
	{Selector: `input[type="image"][src]`, Attr: "src", Kind: KindAsset},
	{Selector: `link[rel="preload"][as="image"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="preload"][as="image"][imagesrcset]`, Attr: "imagesrcset", Srcset: true, Kind: KindAsset},

	// Icons and manifest
	{Selector: `link[rel~="icon"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="shortcut icon"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="apple-touch-icon"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="apple-touch-icon-precomposed"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="mask-icon"][href]`, Attr: "href", Kind: KindAsset},
	{Selector: `link[rel="manifest"][href]`, Attr: "href", Kind: KindAsset},

	// Media
	{Selector: "video[src]", Attr: "src", Kind: KindAsset},
	{Selector: "video[poster]", Attr: "poster", Kind: KindAsset},
	{Selector: "video[data-poster]", Attr: "data-poster", Kind: KindAsset},
	{Selector: "audio[src]", Attr: "src", Kind: KindAsset},
	{Selector: "video source[src]", Attr: "src", Kind: KindAsset},
	{Selector: "audio source[src]", Attr: "src", Kind: KindAsset},

	// Objects and embeds
	{Selector: "object[data]", Attr: "data", Kind: KindAsset},
	{Selector: "embed[src]", Attr: "src", Kind: KindAsset},

	// OpenGraph / Twitter / Schema.org meta tags
	{Selector: `meta[property="og:image"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[property="og:image:url"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[property="og:image:secure_url"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[property="og:video"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[property="og:video:url"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[property="og:audio"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[name="twitter:image"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[name="twitter:image:src"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[name="twitter:player"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[itemprop="image"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[itemprop="thumbnailUrl"]`, Attr: "content", Kind: KindAsset},
	{Selector: `meta[itemprop="contentUrl"]`, Attr: "content", Kind: KindAsset},
}

// svgRefSelectors finds SVG reference elements whose href/xlink:href pair
// is awkward to express as a plain CSS attribute selector (the xlink
// namespace prefix isn't reliably selectable via cascadia), so these are
// walked separately rather than forced into Rules.
var svgRefSelectors = "image, use"

// LazyAttr is a framework lazy-loading attribute name the extractor checks
// on every element, regardless of tag.
type LazyAttr struct {
	Attr   string
	Srcset bool
}

// LazyAttrs is the fixed set of data-* attributes used by lazy-loading
// image libraries. Checked on every element in the document.
//
//nolint:gochecknoglobals // constant lookup table
var LazyAttrs = []LazyAttr{
	{Attr: "data-src"},
	{Attr: "data-srcset", Srcset: true},
	{Attr: "data-lazy-src"},
	{Attr: "data-lazy-srcset", Srcset: true},
	{Attr: "data-original"},
	{Attr: "data-lazy"},
	{Attr: "data-bg"},
	{Attr: "data-image"},
	{Attr: "data-full"},
	{Attr: "data-large"},
	{Attr: "data-hi-res"},
	{Attr: "data-zoom-image"},
	{Attr: "data-echo"},
	{Attr: "data-unveiled"},
	{Attr: "data-background"},
	{Attr: "data-background-image"},
	{Attr: "data-bg-src"},
	{Attr: "data-image-src"},
	{Attr: "data-thumb"},
	{Attr: "data-poster"},
	{Attr: "data-src-retina"},
}

// structuredDataKeys are the JSON-LD object keys whose string (or nested
// .url) value yields an asset URL.
var structuredDataKeys = []string{
	"image", "logo", "thumbnail", "thumbnailUrl", "photo",
	"primaryImageOfPage", "contentUrl",
}

// maxStructuredDataDepth bounds JSON-LD recursion so a pathological nested
// object can't exhaust the stack.
const maxStructuredDataDepth = 32
