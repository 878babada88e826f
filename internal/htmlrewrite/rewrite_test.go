package htmlrewrite_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/brackenforge/webarchiver/internal/htmlrewrite"
)

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return *u
}

func TestRewrite_MappedHyperlinkBecomesRelative(t *testing.T) {
	html := `<html><body><a href="/about">About</a></body></html>`
	mapping := map[string]string{
		"https://example.com/about": "about/index.html",
	}
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/index.html"), []byte(html), mapping, "index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `href="./about/index.html"`) {
		t.Errorf("expected rewritten relative href, got: %s", out)
	}
}

func TestRewrite_DeeperPageUsesMultipleUpLevels(t *testing.T) {
	html := `<html><body><img src="/logo.png"></body></html>`
	mapping := map[string]string{
		"https://example.com/logo.png": "logo.png",
	}
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/docs/guide/index.html"), []byte(html), mapping, "docs/guide/index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `src="../../logo.png"`) {
		t.Errorf("expected two levels up, got: %s", out)
	}
}

func TestRewrite_UnmappedURLLeftUntouched(t *testing.T) {
	html := `<html><body><a href="/missing">Missing</a></body></html>`
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/index.html"), []byte(html), map[string]string{}, "index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `href="/missing"`) {
		t.Errorf("expected untouched href, got: %s", out)
	}
}

func TestRewrite_SrcsetPreservesDescriptors(t *testing.T) {
	html := `<html><body><img srcset="/a.jpg 1x, /b.jpg 2x"></body></html>`
	mapping := map[string]string{
		"https://example.com/a.jpg": "a.jpg",
		"https://example.com/b.jpg": "b.jpg",
	}
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/index.html"), []byte(html), mapping, "index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `srcset="./a.jpg 1x, ./b.jpg 2x"`) {
		t.Errorf("expected rewritten srcset with descriptors preserved, got: %s", out)
	}
}

func TestRewrite_InlineStyleURLRewritten(t *testing.T) {
	html := `<html><body><div style="background-image: url('/bg.png')"></div></body></html>`
	mapping := map[string]string{
		"https://example.com/bg.png": "bg.png",
	}
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/index.html"), []byte(html), mapping, "index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "./bg.png") {
		t.Errorf("expected inline style url rewritten, got: %s", out)
	}
}

func TestRewrite_StyleBlockURLRewritten(t *testing.T) {
	html := `<html><head><style>.hero { background: url(/hero.png); }</style></head><body></body></html>`
	mapping := map[string]string{
		"https://example.com/hero.png": "hero.png",
	}
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/index.html"), []byte(html), mapping, "index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "./hero.png") {
		t.Errorf("expected style block url rewritten, got: %s", out)
	}
}

func TestRewrite_BaseHrefAffectsResolution(t *testing.T) {
	html := `<html><head><base href="https://cdn.example.com/assets/"></head>
		<body><img src="logo.png"></body></html>`
	mapping := map[string]string{
		"https://cdn.example.com/assets/logo.png": "vendor/logo.png",
	}
	out, err := htmlrewrite.Rewrite(mustURL(t, "https://example.com/index.html"), []byte(html), mapping, "index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "./vendor/logo.png") {
		t.Errorf("expected base-href-resolved rewrite, got: %s", out)
	}
}

func TestToRoot_RootFileUsesDotSlash(t *testing.T) {
	if got := htmlrewrite.ToRoot("index.html"); got != "./" {
		t.Errorf("expected ./ at root, got %q", got)
	}
}

func TestToRoot_NestedFileWalksUp(t *testing.T) {
	if got := htmlrewrite.ToRoot("docs/guide/index.html"); got != "../../" {
		t.Errorf("expected ../../ for two directory levels, got %q", got)
	}
}
