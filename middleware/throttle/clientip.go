package throttle

import (
	"net"
	"net/http"
	"strings"
)

type KeyFunc func(r *http.Request) string

// ClientIP identifica o cliente pelo RemoteAddr. Com trustXFF, usa o primeiro
// IP do X-Forwarded-For; só ligue atrás de um proxy que reescreve o header.
func ClientIP(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
