package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the host part of the request's remote address. Proxy headers
// are resolved upstream by chi's RealIP middleware, so only RemoteAddr is read here.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}
