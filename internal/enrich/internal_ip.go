// Copyright 2025 James Ross
package enrich

import "net"

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // link-local
	"::1/128",
	"fc00::/7",  // unique local
	"fe80::/10", // link-local v6
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err) // compile-time constant list; a typo here is a bug
		}
		out = append(out, n)
	}
	return out
}

// IsInternalIP reports whether ip falls within RFC1918, loopback, or
// link-local ranges, per spec.md §4.2.
func IsInternalIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, block := range privateBlocks {
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}
