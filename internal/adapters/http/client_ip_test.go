package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPHonoursForwardedForOnlyFromTrustedProxies(t *testing.T) {
	proxies := parseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.7", "not-an-ip"})

	cases := []struct {
		name    string
		proxies trustedProxies
		remote  string
		xff     string
		want    string
	}{
		{"no proxies configured", nil, "203.0.113.9:4100", "198.51.100.1", "203.0.113.9"},
		{"untrusted peer spoofs header", proxies, "203.0.113.9:4100", "198.51.100.1", "203.0.113.9"},
		{"trusted peer without header", proxies, "10.1.2.3:4100", "", "10.1.2.3"},
		{"trusted peer forwards client", proxies, "10.1.2.3:4100", "198.51.100.1", "198.51.100.1"},
		{"spoofed hop left of real client", proxies, "10.1.2.3:4100", "1.1.1.1, 198.51.100.1", "198.51.100.1"},
		{"chain of trusted proxies", proxies, "10.1.2.3:4100", "198.51.100.1, 192.0.2.7, 10.9.9.9", "198.51.100.1"},
		{"only trusted hops", proxies, "10.1.2.3:4100", "10.4.4.4", "10.4.4.4"},
		{"ipv6 peer", proxies, "[2001:db8::1]:4100", "198.51.100.1", "2001:db8::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, tc.proxies.clientIP(req))
		})
	}
	assert.Len(t, proxies, 2)
}
