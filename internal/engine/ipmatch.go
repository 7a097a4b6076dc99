package engine

import (
	"net"
	"strings"
)

// MatchesAnyCIDR reports whether addr is contained in at least one of the
// given network prefixes. An unparsable address is a non-match, not an
// error: the simulator must stay responsive on malformed input. Prefixes
// are parsed non-strictly (host bits outside the mask are masked away) and
// a bare IP is treated as an exact match.
func MatchesAnyCIDR(addr string, cidrs []string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, cidr := range cidrs {
		if containsIP(ip, cidr) {
			return true
		}
	}
	return false
}

// containsIP checks whether ip is within the CIDR, or equals it exactly
// when the entry has no prefix length.
func containsIP(ip net.IP, cidr string) bool {
	if strings.Contains(cidr, "/") {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return false
		}
		return network.Contains(ip)
	}
	target := net.ParseIP(cidr)
	if target == nil {
		return false
	}
	return ip.Equal(target)
}
