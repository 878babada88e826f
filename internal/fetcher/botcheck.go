package fetcher

import "strings"

// interstitialPhrases are substrings commonly present in bot-challenge
// interstitial pages (Cloudflare, DDoS-Guard, generic "verify you are
// human" pages). This is a best-effort heuristic: it is deliberately kept
// narrow and anchored to 200 HTML responses only, since a legitimate page
// may legitimately contain a phrase like "access denied" in its own copy.
var interstitialPhrases = []string{
	"cf-browser-verification",
	"checking your browser",
	"ddos-guard",
	"please wait while we verify",
	"just a moment",
	"access denied",
}

// looksLikeInterstitial reports whether an HTML body appears to be a bot
// challenge page rather than real content.
func looksLikeInterstitial(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, phrase := range interstitialPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
