package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Accept, Content-Type, Authorization"
)

// corsMiddleware answers preflight requests and marks responses for
// configured origins. Every OPTIONS request ends here.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			h := w.Header()
			h.Add("Vary", "Origin")
			if s.isOriginAllowed(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isOriginAllowed(origin string) bool {
	for _, pattern := range s.config.CORS.AllowedOrigins {
		if matchOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// checkSocketOrigin accepts websocket handshakes from the serving host and
// from configured CORS origins. Clients that send no Origin, such as
// non-browser tools, are accepted.
func (s *Server) checkSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		return true
	case s.isOriginAllowed(origin):
		return true
	default:
		return strings.EqualFold(extractHost(origin), extractHost(r.Host))
	}
}

// matchOrigin matches an origin against an exact origin or a subdomain
// wildcard such as "*.example.com". The wildcard does not match the bare
// domain.
func matchOrigin(origin, pattern string) bool {
	if origin == pattern {
		return true
	}
	suffix, ok := strings.CutPrefix(pattern, "*")
	if !ok || !strings.HasPrefix(suffix, ".") {
		return false
	}
	host := extractHost(origin)
	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// extractHost returns the host name of an origin or host header, without
// scheme, port or path. "https://example.com:8080" yields "example.com".
func extractHost(origin string) string {
	host := origin
	if _, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end > 0 {
			return host[1:end]
		}
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
