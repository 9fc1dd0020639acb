package http

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// trustedProxies decides whether X-Forwarded-For may be read for a request.
type trustedProxies []netip.Prefix

// parseTrustedProxies accepts bare addresses and CIDR ranges. Bad entries are logged and skipped.
func parseTrustedProxies(entries []string) trustedProxies {
	out := make(trustedProxies, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		slog.Warn("ignoring invalid trusted proxy",
			"module", "http",
			"layer", "adapter",
			"operation", "trusted_proxies",
			"outcome", "warning",
			"entry", raw,
		)
	}
	return out
}

func (t trustedProxies) contains(raw string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address unless the peer is a trusted proxy, in which case the
// forwarded chain is walked from the right to the first hop that is not itself trusted.
func (t trustedProxies) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" || !t.contains(peer) {
		return peer
	}
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !t.contains(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}
