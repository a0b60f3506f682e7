// Package httputil holds request helpers shared by the API and stream
// handlers.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address used to key per-client limits. With
// trustProxy set, the leftmost entry of Forwarded, X-Forwarded-For or
// X-Real-IP wins (in that order) when it parses as an IP. Anything else
// falls back to RemoteAddr.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip, ok := forwardedFor(r.Header.Get("Forwarded")); ok {
			return ip
		}
		if ip, ok := parseIP(firstEntry(r.Header.Get("X-Forwarded-For"))); ok {
			return ip
		}
		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func firstEntry(list string) string {
	if i := strings.IndexByte(list, ','); i >= 0 {
		list = list[:i]
	}
	return list
}

// forwardedFor extracts the for= parameter of the first Forwarded element
// (RFC 7239), e.g. `for=192.0.2.60;proto=http` or `for="[2001:db8::1]:4711"`.
func forwardedFor(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	for _, pair := range strings.Split(firstEntry(header), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(k, "for") {
			continue
		}
		return parseIP(strings.Trim(v, `"`))
	}
	return "", false
}

// parseIP accepts a bare address, or one with a port (IPv6 bracketed).
func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if a, err := netip.ParseAddr(s); err == nil {
		return a.Unmap().String(), true
	}
	return "", false
}
