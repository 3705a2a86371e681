package stream

import (
	"net"
	"net/http"
	"strings"
)

// clientIP resolves the address used for per-IP stream accounting. Proxy
// headers are consulted only when the deployment declares a trusted reverse
// proxy in front of the server; otherwise anyone could spoof
// X-Forwarded-For to dodge the connection limit.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedClient(r.Header); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr carried no port.
		return r.RemoteAddr
	}
	return host
}

// forwardedClient reads the originating client address from proxy headers:
// the leftmost X-Forwarded-For entry first, then X-Real-IP.
func forwardedClient(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(h.Get("X-Real-IP"))
}
