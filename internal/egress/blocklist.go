package egress

import "net"

// blockedCIDRs implements §4.5 step 5's private/loopback/link-local ranges.
// Kept in spirit from the teacher's internal/proxy/ssrf.go blockedCIDRs
// table, trimmed to exactly the ranges §4.5 names (the teacher additionally
// blocks documentation/benchmarking/multicast ranges relevant to its own
// webhook dialer; this checker only needs the ranges the specification's
// contract enumerates).
var blockedCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/32",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, ipnet)
		}
	}
	return nets
}()

// isBlockedIP checks whether ip falls within any of §4.5's blocked ranges.
func isBlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
