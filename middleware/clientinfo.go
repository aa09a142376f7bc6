package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/lifeplan-navigator/authcore"
)

// DefaultTrustedProxies are the loopback and private ranges allowed to set
// X-Forwarded-For and X-Real-IP.
var DefaultTrustedProxies = []string{
	"127.0.0.1/32",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

// TrustedProxies decides when forwarded client address headers are honored.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies parses CIDRs or bare IPs. An empty list trusts no
// proxy, so forwarded headers are always ignored.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	t := &TrustedProxies{nets: make([]*net.IPNet, 0, len(entries))}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			t.nets = append(t.nets, ipNet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("trusted proxy %q: invalid ip", entry)
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		t.nets = append(t.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return t, nil
}

func (t *TrustedProxies) trusted(ipStr string) bool {
	if t == nil {
		return false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller address. Forwarded headers are read only when
// the direct peer is a trusted proxy, and only a syntactically valid IP is
// accepted from them.
func (t *TrustedProxies) ClientIP(r *http.Request) string {
	connIP := remoteIP(r.RemoteAddr)
	if !t.trusted(connIP) {
		return connIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return connIP
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// maxUserAgentLength bounds what is stored on sessions and audit events.
const maxUserAgentLength = 512

// ClientInfo attaches the client IP and User-Agent to the request context
// for the engine's limiters, sessions and audit events.
func ClientInfo(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			if len(ua) > maxUserAgentLength {
				ua = ua[:maxUserAgentLength]
			}
			ctx := authcore.WithClientIP(r.Context(), proxies.ClientIP(r))
			ctx = authcore.WithUserAgent(ctx, ua)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
