package api

import (
	"net"
	"net/http"
	"strings"
)

// UnknownAddress is used when no client address can be determined.
const UnknownAddress = "unknown"

// proxyHeaders are consulted in order when proxy headers are trusted.
var proxyHeaders = []string{
	"X-Forwarded-For",
	"X-Vercel-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
}

// ClientAddress resolves the submitter's network address. Proxy headers win
// over the socket address only when trustProxy is set. List-valued headers
// contribute their last entry, the one appended by the proxy in front of us;
// earlier entries are whatever the client sent.
func ClientAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, header := range proxyHeaders {
			if addr := lastEntry(r.Header.Values(header)); addr != "" {
				return addr
			}
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote != "" {
		return remote
	}
	return UnknownAddress
}

// lastEntry returns the final entry across repeated, comma-separated header
// values.
func lastEntry(values []string) string {
	if len(values) == 0 {
		return ""
	}
	last := values[len(values)-1]
	if i := strings.LastIndexByte(last, ','); i >= 0 {
		last = last[i+1:]
	}
	return strings.TrimSpace(last)
}
