package fetcher

import "sync/atomic"

// rotationPool lists realistic, current desktop-browser User-Agent strings.
// The fetcher rotates through this pool whenever a host signals it wants a
// different client (403, bot-interstitial, or a retried 429) rather than
// hammering the same fingerprint repeatedly.
var rotationPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// uaRotator is a lock-free pointer into rotationPool shared by every
// in-flight fetch for one Fetcher instance.
type uaRotator struct {
	idx int32
}

func newUARotator() *uaRotator {
	return &uaRotator{}
}

// Current returns the rotation entry currently selected.
func (u *uaRotator) Current() string {
	i := atomic.LoadInt32(&u.idx)
	return rotationPool[int(i)%len(rotationPool)]
}

// Rotate advances to the next entry and returns it.
func (u *uaRotator) Rotate() string {
	i := atomic.AddInt32(&u.idx, 1)
	return rotationPool[int(i)%len(rotationPool)]
}
