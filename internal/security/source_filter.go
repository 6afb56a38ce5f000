package security

import "net"

// SourceFilter validates a scout reply's source address against the
// interface the scout request went out on: a Hello from an address
// that couldn't be on-link is more likely spoofed than a genuine
// peer, since zenoh-pico's scout is a link-local multicast exchange.
type SourceFilter struct {
	ifaceAddrs []net.IPNet
}

// NewSourceFilter caches iface's addresses up front so IsValid never
// makes a syscall on the per-datagram hot path.
func NewSourceFilter(iface net.Interface) (*SourceFilter, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return &SourceFilter{}, nil
	}
	var ipnets []net.IPNet
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			ipnets = append(ipnets, *ipnet)
		}
	}
	return &SourceFilter{ifaceAddrs: ipnets}, nil
}

// IsValid reports whether srcIP could plausibly be an on-link scout
// responder: a link-local address (169.254.0.0/16) or one in the same
// subnet as the scouting interface.
func (sf *SourceFilter) IsValid(srcIP net.IP) bool {
	ip4 := srcIP.To4()
	if ip4 == nil {
		return false
	}
	if ip4[0] == 169 && ip4[1] == 254 {
		return true
	}
	for _, ipnet := range sf.ifaceAddrs {
		if ipnet.Contains(srcIP) {
			return true
		}
	}
	return false
}

// isPrivate reports whether ip falls in one of the RFC 1918 private
// ranges.
func isPrivate(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	if ip4[0] == 10 {
		return true
	}
	if ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31 {
		return true
	}
	if ip4[0] == 192 && ip4[1] == 168 {
		return true
	}
	return false
}
