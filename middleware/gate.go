package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session attached by Gate.Session.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

// ResourceResolver loads the resource a request targets. Returning an error
// wrapping authcore.ErrUserNotFound yields 404; any other error yields 500.
type ResourceResolver func(r *http.Request, s *session.Session) (authz.Resource, error)

// Gate adapts an Engine to HTTP. Its steps run in a fixed order: CSRF,
// session, MFA, authorization.
type Gate struct {
	Engine *authcore.Engine
}

// NewGate returns a Gate for engine.
func NewGate(engine *authcore.Engine) *Gate {
	return &Gate{Engine: engine}
}

// CSRF rejects state-changing requests without a matching token.
func (g *Gate) CSRF() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if g == nil || g.Engine == nil {
			return unavailableHandler()
		}
		return g.Engine.CSRF().Middleware(next)
	}
}

// Session resolves the session cookie and attaches the session to the
// request context. A missing, expired or unreadable session is 401 and the
// cookie is cleared. A session store outage is also 401 but keeps the
// cookie, since the session may still be valid once the store is back.
func (g *Gate) Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil || g.Engine == nil {
				WriteError(w, authcore.ErrUnauthorized)
				return
			}

			cookie, err := r.Cookie(g.Engine.SessionCookieName())
			if err != nil {
				WriteError(w, authcore.ErrUnauthorized)
				return
			}

			s, err := g.Engine.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				switch {
				case errors.Is(err, authcore.ErrUnauthorized):
					http.SetCookie(w, g.Engine.ClearSessionCookie())
					WriteError(w, authcore.ErrUnauthorized)
					return
				case errors.Is(err, authcore.ErrStoreUnavailable):
					WriteError(w, authcore.ErrUnauthorized)
					return
				}
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireMFA rejects sessions that have not completed MFA with 403
// mfa_required, or mfa_setup_required when the account has no MFA.
// It must run after Session.
func (g *Gate) RequireMFA() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				WriteError(w, authcore.ErrUnauthorized)
				return
			}
			if err := g.Engine.RequireMFA(r.Context(), s); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authorize checks action on the resource returned by resolve. Every denial
// is the same 403. It must run after Session.
func (g *Gate) Authorize(action authz.Action, resolve ResourceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				WriteError(w, authcore.ErrUnauthorized)
				return
			}

			res, err := resolve(r, s)
			if err != nil {
				WriteError(w, err)
				return
			}
			if err := g.Engine.Authorize(r.Context(), s, action, res); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Rule describes what a protected route needs beyond a session.
type Rule struct {
	RequireMFA bool
	Action     authz.Action
	Resource   ResourceResolver
}

// Protect wraps next with the whole gate in order.
func (g *Gate) Protect(rule Rule, next http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{g.CSRF(), g.Session()}
	if rule.RequireMFA {
		chain = append(chain, g.RequireMFA())
	}
	if rule.Resource != nil {
		chain = append(chain, g.Authorize(rule.Action, rule.Resource))
	}
	return Chain(chain...)(next)
}

// Chain composes middleware; the first runs outermost.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

func unavailableHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, authcore.ErrEngineNotReady)
	})
}
