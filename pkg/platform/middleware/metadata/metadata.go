// Package metadata carries the caller's address through the request context.
// Proxy headers are resolved upstream by chi's RealIP middleware, which
// rewrites RemoteAddr before ClientMetadata runs.
package metadata

import (
	"context"
	"net"
	"net/http"
	"net/netip"
)

type contextKeyClientIP struct{}

// ClientMetadata stores the normalized client IP in the request context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), ClientIPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP returns the IP stored by ClientMetadata, or "".
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects a client IP, for tests that skip the middleware chain.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyClientIP{}, ip)
}

// ClientIPFromRequest returns the host part of RemoteAddr. IPv4-mapped IPv6
// addresses are reduced to IPv4 so both forms share a rate limit bucket.
// Unparseable addresses are returned unchanged.
func ClientIPFromRequest(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	return host
}
