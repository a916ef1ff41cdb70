package security

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver returns fixed addresses for every host.
type fakeResolver struct {
	addrs []net.IPAddr
	err   error
}

func (f *fakeResolver) LookupIPAddr(_ context.Context, _ string) ([]net.IPAddr, error) {
	return f.addrs, f.err
}

func ipAddrs(ips ...string) []net.IPAddr {
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out
}

func TestGuard_IsBlocked(t *testing.T) {
	g, err := NewGuard(nil)
	require.NoError(t, err)

	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fe80::1", true},
		{"52.216.0.1", false},
		{"8.8.8.8", false},
		{"2600:1f18::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.blocked, g.IsBlocked(net.ParseIP(tt.ip)))
		})
	}
}

func TestGuard_DialContext_BlocksLiteralIP(t *testing.T) {
	g, err := NewGuard(nil)
	require.NoError(t, err)

	_, err = g.DialContext(context.Background(), "tcp", "169.254.169.254:80")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGuard_DialContext_BlocksMixedResolution(t *testing.T) {
	g, err := NewGuard(&fakeResolver{addrs: ipAddrs("52.216.0.1", "10.0.0.5")})
	require.NoError(t, err)

	_, err = g.DialContext(context.Background(), "tcp", "bucket.s3.amazonaws.com:443")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGuard_DialContext_DNSFailure(t *testing.T) {
	g, err := NewGuard(&fakeResolver{err: errors.New("no such host")})
	require.NoError(t, err)

	_, err = g.DialContext(context.Background(), "tcp", "missing.example.com:443")
	assert.ErrorIs(t, err, ErrDNSFailed)
}

func TestGuard_DialContext_EmptyResolution(t *testing.T) {
	g, err := NewGuard(&fakeResolver{})
	require.NoError(t, err)

	_, err = g.DialContext(context.Background(), "tcp", "empty.example.com:443")
	assert.ErrorIs(t, err, ErrDNSFailed)
}

func TestGuard_CheckRedirect(t *testing.T) {
	g, err := NewGuard(&fakeResolver{addrs: ipAddrs("52.216.0.1")})
	require.NoError(t, err)
	check := g.CheckRedirect(2)

	newReq := func(raw string) *http.Request {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return (&http.Request{URL: u}).WithContext(context.Background())
	}

	assert.NoError(t, check(newReq("https://bucket.s3.amazonaws.com/x"), nil))
	assert.ErrorIs(t, check(newReq("http://127.0.0.1/x"), nil), ErrBlocked)
	assert.ErrorIs(t, check(newReq("https://bucket.s3.amazonaws.com/x"), make([]*http.Request, 2)), ErrTooManyRedirects)
}

func TestNewSafeHTTPClient_RefusesLoopbackServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach a loopback server")
	}))
	defer server.Close()

	client, err := NewSafeHTTPClient(3, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
}
