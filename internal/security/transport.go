// Package security guards the callback transport against server-side request
// forgery. The ResponseURL arrives inside the invocation event, so a forged
// event could otherwise point the PUT at the instance metadata service or
// another private address.
//
// The guard is opt-in (BLOCK_PRIVATE_NETWORKS): functions that reach S3
// through a VPC interface endpoint resolve response URLs to private
// addresses and must leave it off.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// dnsTimeout is the maximum time allowed for DNS resolution.
const dnsTimeout = 500 * time.Millisecond

var (
	// ErrBlocked is returned when a request targets a blocked IP range.
	ErrBlocked = errors.New("ssrf: request to blocked IP range")
	// ErrDNSFailed is returned when DNS resolution fails or times out.
	ErrDNSFailed = errors.New("ssrf: DNS resolution failed")
	// ErrTooManyRedirects is returned when the redirect limit is exceeded.
	ErrTooManyRedirects = errors.New("ssrf: too many redirects")
)

// BlockedCIDRs are the ranges a response URL may never resolve into.
var BlockedCIDRs = []string{
	"127.0.0.0/8",    // Localhost
	"10.0.0.0/8",     // Private Class A
	"172.16.0.0/12",  // Private Class B
	"192.168.0.0/16", // Private Class C
	"169.254.0.0/16", // Link-local (instance metadata)
	"0.0.0.0/8",      // Current network
	"100.64.0.0/10",  // Shared Address Space (CGN)
	"fc00::/7",       // IPv6 private
	"fe80::/10",      // IPv6 link-local
	"::1/128",        // IPv6 localhost
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard validates hosts against a parsed blocklist.
type Guard struct {
	blocked  []*net.IPNet
	resolver Resolver
}

// NewGuard parses BlockedCIDRs. A nil resolver uses net.DefaultResolver.
func NewGuard(resolver Resolver) (*Guard, error) {
	blocked := make([]*net.IPNet, 0, len(BlockedCIDRs))
	for _, cidr := range BlockedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("ssrf: failed to parse CIDR %q: %w", cidr, err)
		}
		blocked = append(blocked, ipNet)
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{blocked: blocked, resolver: resolver}, nil
}

// IsBlocked reports whether ip falls into a blocked range.
func (g *Guard) IsBlocked(ip net.IP) bool {
	for _, ipNet := range g.blocked {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// resolve returns the addresses of host after checking every one of them.
// All addresses are validated before any is used so that a name mixing a
// public and a private address is rejected.
func (g *Guard) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if g.IsBlocked(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, ip)
		}
		return []net.IP{ip}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := g.resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrDNSFailed, host)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if g.IsBlocked(addr.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, addr.IP, host)
		}
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// DialContext dials the first validated address of addr's host.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}
	ips, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}

// CheckRedirect returns an http.Client CheckRedirect function that applies
// the blocklist to redirect targets and caps the redirect chain.
func (g *Guard) CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrBlocked)
		}
		_, err := g.resolve(req.Context(), host)
		return err
	}
}

// NewSafeHTTPClient creates an http.Client whose connections and redirects
// pass through a Guard. No client timeout is set; the request context
// bounds each call.
func NewSafeHTTPClient(maxRedirects int, resolver Resolver) (*http.Client, error) {
	guard, err := NewGuard(resolver)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = guard.DialContext

	return &http.Client{
		Transport:     transport,
		CheckRedirect: guard.CheckRedirect(maxRedirects),
	}, nil
}
