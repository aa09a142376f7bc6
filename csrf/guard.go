package csrf

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lifeplan-navigator/authcore/token"
)

const (
	// CookieName is the double-submit cookie. The __Host- prefix pins it to
	// the exact origin with Path=/.
	CookieName = "__Host-csrf-token"
	// HeaderName carries the client copy of the token.
	HeaderName = "X-CSRF-Token"
	// TokenPath is the issuing endpoint; it is always exempt.
	TokenPath = "/api/csrf-token"
	// DefaultMaxAge is the cookie lifetime.
	DefaultMaxAge = 24 * time.Hour
)

// State is the outcome of checking one request.
type State int

const (
	// Unchecked means the guard has not run for the request.
	Unchecked State = iota
	// Exempt means the method or path does not require a token.
	Exempt
	// Validated means the cookie and header matched.
	Validated
	// Rejected means the request must be refused with 403.
	Rejected
)

func (s State) String() string {
	switch s {
	case Exempt:
		return "exempt"
	case Validated:
		return "validated"
	case Rejected:
		return "rejected"
	default:
		return "unchecked"
	}
}

// Config controls cookie attributes and exempt routes.
type Config struct {
	Secure         bool
	MaxAge         time.Duration
	ExemptPrefixes []string
	// OnReject is called for every rejected request, after the response
	// has been decided and before it is written.
	OnReject func(r *http.Request)
}

// DefaultConfig returns the production cookie policy with the external API
// prefix exempted.
func DefaultConfig() Config {
	return Config{
		Secure:         true,
		MaxAge:         DefaultMaxAge,
		ExemptPrefixes: []string{"/api/external/"},
	}
}

// Guard validates and issues CSRF tokens.
type Guard struct {
	cfg Config
}

// New creates a Guard. A zero MaxAge falls back to DefaultMaxAge.
func New(cfg Config) *Guard {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Guard{cfg: cfg}
}

// StateChanging reports whether method mutates server state.
func StateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Check classifies r without writing a response.
func (g *Guard) Check(r *http.Request) State {
	if !StateChanging(r.Method) || g.exempt(r.URL.Path) {
		return Exempt
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Rejected
	}
	header := r.Header.Get(HeaderName)
	if header == "" {
		return Rejected
	}
	if !token.Equal(cookie.Value, header) {
		return Rejected
	}
	return Validated
}

func (g *Guard) exempt(path string) bool {
	if path == TokenPath {
		return true
	}
	for _, p := range g.cfg.ExemptPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Issue reuses a well-formed token from the request cookie or generates a
// new one, and (re)sets the cookie on w.
func (g *Guard) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	value := ""
	if c, err := r.Cookie(CookieName); err == nil && token.WellFormed(c.Value) {
		value = c.Value
	}
	if value == "" {
		fresh, err := token.Generate()
		if err != nil {
			return "", err
		}
		value = fresh
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(g.cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return value, nil
}

// Handler serves the token endpoint.
func (g *Guard) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		tok, err := g.Issue(w, r)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
	})
}

type stateContextKey struct{}

// StateFromContext returns the state recorded by Middleware.
func StateFromContext(ctx context.Context) State {
	s, _ := ctx.Value(stateContextKey{}).(State)
	return s
}

// Middleware rejects requests whose state is Rejected with a generic 403.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := g.Check(r)
		if state == Rejected {
			if g.cfg.OnReject != nil {
				g.cfg.OnReject(r)
			}
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "CSRF token validation failed"})
			return
		}
		ctx := context.WithValue(r.Context(), stateContextKey{}, state)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
