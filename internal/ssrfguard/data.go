package ssrfguard

/*
Responsibilities

- Decide, before any socket is opened, whether a URL is safe to fetch
- Re-run the same decision after every redirect hop
- Never allow a DNS answer to silently point the fetcher at a private
  or link-local address (DNS-rebinding defense)

The guard makes no network requests of its own beyond the DNS lookups it
performs to validate a hostname; it never follows or inspects the
resource itself.
*/

// Protocol is a scheme the guard may allow or reject.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

// Verdict is the closed outcome alphabet Validate returns.
type Verdict int

const (
	VerdictSafe Verdict = iota
	VerdictUnsafe
)

// Result is the outcome of a single Validate call.
type Result struct {
	Verdict Verdict
	// IP is the resolved (or literal) address that was judged safe.
	// Populated only when Verdict == VerdictSafe.
	IP string
	// Reason explains an Unsafe verdict; empty when Verdict == VerdictSafe.
	Reason string
}

func (r Result) Safe() bool {
	return r.Verdict == VerdictSafe
}

// blockedHostnames is the explicit hostname block-list: loopback spellings
// and cloud-metadata hostnames that must never be dereferenced regardless
// of what they resolve to.
var blockedHostnames = map[string]bool{
	"localhost":          true,
	"localhost.localdomain": true,
	"metadata.google.internal": true,
	"metadata.goog":       true,
	"instance-data":       true,
	"instance-data.ec2.internal": true,
}
