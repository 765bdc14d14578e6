package server

import (
	"net"
	"net/http"
	"strings"
)

// Client-IP extraction. The collector usually sits behind a reverse
// proxy, so RemoteAddr alone is the proxy, not the visitor. The
// extracted address doubles as the rate-limit source key, which is why
// forwarded headers are filtered: an attacker-supplied private or
// garbage hop must not mint fresh limiter buckets.

// isPublicIP excludes private, loopback and link-local ranges so
// internal proxy hops in X-Forwarded-For are skipped.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsPrivate() {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}

// safeParseIP tolerates whitespace and empty segments.
func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// clientIP returns the best-known visitor address:
//
//  1. first public IP in X-Forwarded-For
//  2. X-Real-IP when valid
//  3. RemoteAddr host (also covers LAN deployments with no proxy)
//
// An empty return means no usable address; the gate then skips
// per-source limiting and relies on the global cap.
func clientIP(r *http.Request) string {

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// e.g. "203.0.113.1, 10.0.1.24"
		for _, part := range strings.Split(xff, ",") {
			ip := safeParseIP(part)
			if isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		if ip := safeParseIP(real); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if ip := safeParseIP(host); ip != nil {
			return ip.String()
		}
	}

	return ""
}
