package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lifeplan-navigator/authcore"
)

const permissionsPolicy = "camera=(), microphone=(), geolocation=(), interest-cohort=()"

// ContentSecurityPolicy builds the CSP for the given environment.
func ContentSecurityPolicy(cfg authcore.HeadersConfig, production bool) string {
	scriptSrc := "'self' 'unsafe-inline' 'unsafe-eval'"
	connect := []string{"'self'"}
	if production {
		scriptSrc = "'self'"
	} else {
		connect = append(connect, cfg.DevConnectSrc...)
	}
	if cfg.APIOrigin != "" {
		connect = append(connect, cfg.APIOrigin)
	}
	connect = append(connect, cfg.ExtraConnectSrc...)

	directives := []string{
		"default-src 'self'",
		"script-src " + scriptSrc,
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src " + strings.Join(connect, " "),
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	if production {
		directives = append(directives, "upgrade-insecure-requests")
	}
	return strings.Join(directives, "; ")
}

// SecurityHeaders sets the browser hardening headers on every response.
// HSTS is only sent in production.
func SecurityHeaders(cfg authcore.HeadersConfig, production bool) func(http.Handler) http.Handler {
	csp := ContentSecurityPolicy(cfg, production)

	var hsts string
	if production {
		maxAge := int64(cfg.HSTSMaxAge.Seconds())
		if maxAge <= 0 {
			maxAge = 31536000
		}
		hsts = "max-age=" + strconv.FormatInt(maxAge, 10) + "; includeSubDomains; preload"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("Content-Security-Policy", csp)
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}
