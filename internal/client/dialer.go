package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrBlockedAddress is returned when a target resolves to a private or
// reserved address and private networks are blocked.
var ErrBlockedAddress = errors.New("target resolves to a private or reserved address")

// blockedRanges are the private and reserved networks refused by safeDialer.
var blockedRanges = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// safeDialer resolves the host itself, rejects the connection if any address
// is blocked, and dials the first address directly so a second lookup cannot
// return something else.
type safeDialer struct {
	inner   *net.Dialer
	blocked []*net.IPNet
}

func newSafeDialer(inner *net.Dialer) *safeDialer {
	blocked := make([]*net.IPNet, 0, len(blockedRanges))
	for _, cidr := range blockedRanges {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("client: bad blocked range %q: %v", cidr, err))
		}
		blocked = append(blocked, n)
	}
	return &safeDialer{inner: inner, blocked: blocked}
}

func (d *safeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		if d.isBlocked(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		return d.inner.DialContext(ctx, network, addr)
	}

	resolver := d.inner.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %q", host)
	}
	for _, ip := range ips {
		if d.isBlocked(ip.IP) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrBlockedAddress, host, ip.IP)
		}
	}

	return d.inner.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}

func (d *safeDialer) isBlocked(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, n := range d.blocked {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
