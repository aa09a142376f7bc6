package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/csrf"
	"github.com/lifeplan-navigator/authcore/middleware"
)

// Routes builds the HTTP handler. Every route passes Recovery, security
// headers, client info and the per-IP throttle, in that order.
func (s *server) Routes() http.Handler {
	engineCfg := s.engine.Config()

	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(s.logger),
		middleware.SecurityHeaders(engineCfg.Headers, engineCfg.Production()),
		middleware.ClientInfo(s.proxies),
		middleware.RateLimit(s.limiter),
	)

	r.Get("/healthz", s.handleHealth)
	if s.exporter != nil {
		r.Method(http.MethodGet, "/metrics", s.exporter.Handler())
	}
	r.Method(http.MethodGet, csrf.TokenPath, s.engine.CSRF().Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.gate.CSRF())
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.gate.CSRF(), s.gate.Session())
			r.Post("/logout", s.handleLogout)
			r.Post("/logout-all", s.handleLogoutAll)
			r.Get("/sessions", s.handleSessions)
			r.Post("/mfa/setup", s.handleMFASetup)
			r.Post("/mfa/verify", s.handleMFAVerify)
			r.Post("/mfa/backup", s.handleMFABackup)
			r.Post("/password", s.handlePassword)
		})
	})

	r.Route("/api/users/{userID}/profile", func(r chi.Router) {
		r.Method(http.MethodGet, "/", s.gate.Protect(middleware.Rule{
			Action:   authz.ActionRead,
			Resource: s.profileResource,
		}, http.HandlerFunc(s.handleProfileGet)))
		r.Method(http.MethodPut, "/", s.gate.Protect(middleware.Rule{
			RequireMFA: true,
			Action:     authz.ActionUpdate,
			Resource:   s.profileResource,
		}, http.HandlerFunc(s.handleProfileUpdate)))
	})

	return r
}
