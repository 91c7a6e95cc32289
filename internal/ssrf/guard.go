// Package ssrf rejects outbound dial targets that resolve to private,
// loopback, or link-local addresses, per §4.4 step 2 ("Apply SSRF guard").
// The examples carry no third-party SSRF library for this; it is a small
// net.IP classification that the standard library expresses directly (see
// DESIGN.md for the stdlib-justification entry).
package ssrf

import (
	"context"
	"fmt"
	"net"
)

// Guard decides whether a resolved IP is safe to dial. Hosts in Allowlist
// bypass the check entirely, for deployments that intentionally target
// internal services (§6 config: SSRF_ALLOWLIST).
type Guard struct {
	allowHosts map[string]struct{}
}

func New(allowlist []string) *Guard {
	g := &Guard{allowHosts: make(map[string]struct{}, len(allowlist))}
	for _, h := range allowlist {
		g.allowHosts[h] = struct{}{}
	}
	return g
}

// DialContext wraps a net.Dialer's DialContext, rejecting the connection
// after DNS resolution if the resolved address is unsafe. It is meant to be
// installed as http.Transport.DialContext so the check runs on every
// connection, including ones reached via redirect.
func (g *Guard) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		if _, allowed := g.allowHosts[host]; allowed {
			return dialer.DialContext(ctx, network, addr)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("ssrf guard: resolve %q: %w", host, err)
		}
		for _, ip := range ips {
			if unsafeIP(ip.IP) {
				return nil, fmt.Errorf("ssrf guard: %q resolves to disallowed address %s", host, ip.IP)
			}
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

func unsafeIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
