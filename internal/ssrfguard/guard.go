package ssrfguard

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// blockedV4 lists the IPv4 CIDR ranges that must never be dereferenced:
// loopback, the three private ranges, link-local (covers the cloud
// metadata address 169.254.169.254), the current-network range, and the
// broadcast address.
var blockedV4 = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"255.255.255.255/32",
)

// blockedV6 lists IPv6 ranges that must never be dereferenced: loopback,
// unique-local, link-local, and the EC2 IMDSv6 metadata address.
var blockedV6 = mustParseCIDRs(
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"fd00:ec2::254/128",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("ssrfguard: invalid literal CIDR: " + c)
		}
		nets = append(nets, n)
	}
	return nets
}

func isBlockedIP(ip net.IP) bool {
	ranges := blockedV4
	if ip.To4() == nil {
		ranges = blockedV6
	}
	for _, n := range ranges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution so tests can inject a fake answer set
// without touching the real system resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// netResolver is the production Resolver backed by net.DefaultResolver.
type netResolver struct{}

func (netResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// DefaultResolver is the system-DNS-backed Resolver used by Validate when
// none is supplied.
var DefaultResolver Resolver = netResolver{}

// Validate runs the pre-flight checks, in order, each failing fast:
// protocol allow-list, hostname block-list, literal-IP range check, or (for
// a hostname) DNS resolution with every returned address checked against
// the blocked ranges — the DNS-rebinding defense. It is meant to be called
// before the first request and again after every redirect hop.
func Validate(ctx context.Context, rawURL string, allowedProtocols []Protocol) Result {
	return validate(ctx, rawURL, allowedProtocols, DefaultResolver)
}

// ValidateWithResolver is Validate with an injectable Resolver, for tests.
func ValidateWithResolver(ctx context.Context, rawURL string, allowedProtocols []Protocol, resolver Resolver) Result {
	return validate(ctx, rawURL, allowedProtocols, resolver)
}

func validate(ctx context.Context, rawURL string, allowedProtocols []Protocol, resolver Resolver) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{Verdict: VerdictUnsafe, Reason: "unparseable URL"}
	}

	if !protocolAllowed(u.Scheme, allowedProtocols) {
		return Result{Verdict: VerdictUnsafe, Reason: "protocol not allowed: " + u.Scheme}
	}

	host := u.Hostname()
	if host == "" {
		return Result{Verdict: VerdictUnsafe, Reason: "missing hostname"}
	}
	if blockedHostnames[strings.ToLower(host)] {
		return Result{Verdict: VerdictUnsafe, Reason: "blocked hostname: " + host}
	}

	if literal := net.ParseIP(host); literal != nil {
		if isBlockedIP(literal) {
			return Result{Verdict: VerdictUnsafe, Reason: "blocked IP range: " + literal.String()}
		}
		return Result{Verdict: VerdictSafe, IP: literal.String()}
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return Result{Verdict: VerdictUnsafe, Reason: "dns resolution failed for " + host}
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return Result{Verdict: VerdictUnsafe, Reason: "resolved address in blocked range: " + addr.IP.String()}
		}
	}
	return Result{Verdict: VerdictSafe, IP: addrs[0].IP.String()}
}

func protocolAllowed(scheme string, allowed []Protocol) bool {
	if len(allowed) == 0 {
		return scheme == string(ProtocolHTTP) || scheme == string(ProtocolHTTPS)
	}
	for _, p := range allowed {
		if strings.EqualFold(scheme, string(p)) {
			return true
		}
	}
	return false
}
