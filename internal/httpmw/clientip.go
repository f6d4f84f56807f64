package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// UnknownClient is used in place of a client address when none can be
// resolved, so every caller still lands in some rate-limit bucket.
const UnknownClient = "unknown"

// ClientIPOptions configures client IP extraction behavior.
type ClientIPOptions struct {
	// TrustedHops is the number of trusted reverse proxies between the client
	// and this server. 0 = no proxies (X-Forwarded-For ignored), 1 = single ALB
	// (rightmost XFF entry), 2 = CDN + ALB (second from end), etc.
	TrustedHops int
}

// ClientIP extracts the client IP address from the request and stores it in the context.
// Uses default options (TrustedHops=0: no trusted proxies, X-Forwarded-For is ignored).
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions returns middleware that extracts the client IP using the
// given options.
func ClientIPWithOptions(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractRealClientAddr(r, opts.TrustedHops)
			ctx := WithClientIP(r.Context(), ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractRealClientAddr only trusts X-Forwarded-For when the peer is a private
// address and trustedHops > 0, selecting the Nth-from-end entry. Forwarded
// headers from anyone else are stripped so nothing downstream trusts them.
func extractRealClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return UnknownClient
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		stripForwarded(r)
		return UnknownClient
	}
	clientAddr := ip.String()

	if !ip.IsPrivate() && !ip.IsLoopback() {
		// not from our infrastructure
		stripForwarded(r)
		return clientAddr
	}

	if trustedHops <= 0 {
		stripForwarded(r)
		return clientAddr
	}

	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		idx := len(parts) - trustedHops
		if idx < 0 {
			// fewer entries than expected proxies - misconfiguration or manipulation
			// fail closed: strip headers, use RemoteAddr
			stripForwarded(r)
			return clientAddr
		}
		if candidate := net.ParseIP(strings.TrimSpace(parts[idx])); candidate != nil {
			clientAddr = candidate.String()
		}
	}

	return clientAddr
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the resolved client address, or "" when the
// ClientIP middleware did not run.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ClientKey is ClientIPFromContext with UnknownClient as the fallback.
func ClientKey(ctx context.Context) string {
	if ip := ClientIPFromContext(ctx); ip != "" {
		return ip
	}
	return UnknownClient
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
