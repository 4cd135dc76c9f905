package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"candlegate/internal/logging"
)

// IPFilter rejects requests whose client address falls in any of the
// blocked prefixes with a JSON 403. No prefixes means no filtering.
func IPFilter(logger logging.Logger, cidrs []string) (Middleware, error) {
	if logger == nil {
		logger = logging.Nop{}
	}

	blocked := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("ip block list: %w", err)
		}
		blocked = append(blocked, p.Masked())
	}

	return func(next http.Handler) http.Handler {
		if len(blocked) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := clientAddr(r)
			if ok && isBlocked(blocked, addr) {
				logger.Info("client blocked",
					"ip", addr.String(),
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				WriteJSONError(w, http.StatusForbidden, http.StatusText(http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func isBlocked(blocked []netip.Prefix, addr netip.Addr) bool {
	for _, p := range blocked {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr prefers the first X-Forwarded-For hop over the socket peer.
// IPv4-mapped IPv6 addresses are unmapped so v4 prefixes still match.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.Unmap(), true
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
