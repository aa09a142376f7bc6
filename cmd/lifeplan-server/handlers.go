package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/middleware"
	"github.com/lifeplan-navigator/authcore/session"
)

const maxBodyBytes = 1 << 16

// errBadBody is reported as a validation failure on the "body" field.
var errBadBody = &authcore.ValidationError{Field: "body", Message: "request body must be a JSON object"}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadBody
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

type authResponse struct {
	User        authcore.User `json:"user"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	MFARequired bool          `json:"mfaRequired"`
}

func (s *server) writeAuthResult(w http.ResponseWriter, status int, res *authcore.AuthResult) {
	http.SetCookie(w, s.engine.SessionCookie(res.Cookie, res.ExpiresAt))
	middleware.WriteJSON(w, status, authResponse{
		User:        res.User,
		ExpiresAt:   res.ExpiresAt,
		MFARequired: res.MFARequired,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latency, err := s.engine.Ping(r.Context())
	if err != nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"redisLatencyMs": latency.Milliseconds(),
	})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authcore.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := s.engine.Register(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	s.writeAuthResult(w, http.StatusCreated, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	s.writeAuthResult(w, http.StatusOK, res)
}

// current returns the session attached by the gate. Routes using it are
// always mounted behind Gate.Session.
func current(r *http.Request) *session.Session {
	sess, _ := middleware.SessionFromContext(r.Context())
	return sess
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), current(r).ID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	http.SetCookie(w, s.engine.ClearSessionCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.LogoutAll(r.Context(), current(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	http.SetCookie(w, s.engine.ClearSessionCookie())
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sess := current(r)
	list, err := s.engine.ListSessions(r.Context(), sess.UserID, sess.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *server) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	setup, err := s.engine.SetupMFA(r.Context(), current(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, setup)
}

type mfaVerifyRequest struct {
	Code   string             `json:"code"`
	Action authcore.MFAAction `json:"action"`
}

func (s *server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := s.engine.VerifyMFA(r.Context(), current(r).ID, req.Code, req.Action); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

type backupRequest struct {
	Code string `json:"code"`
}

func (s *server) handleMFABackup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	left, err := s.engine.VerifyBackupCode(r.Context(), current(r).ID, req.Code)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"verified": true, "remaining": left})
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *server) handlePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := s.engine.ChangePassword(r.Context(), current(r).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.WriteError(w, err)
		return
	}
	// Every session, including this one, is gone.
	http.SetCookie(w, s.engine.ClearSessionCookie())
	w.WriteHeader(http.StatusNoContent)
}

// profileResource resolves {userID} without a lookup, so an unknown id and
// another user's id get the same decision. Only callers allowed to read the
// profile can learn that it does not exist.
func (s *server) profileResource(r *http.Request, _ *session.Session) (authz.Resource, error) {
	userID := chi.URLParam(r, "userID")
	return authz.Resource{Kind: authz.KindProfile, ID: userID, UserID: userID}, nil
}

func (s *server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	u, err := s.engine.ViewProfile(r.Context(), authcore.Actor(current(r)), chi.URLParam(r, "userID"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}

type profileUpdateRequest struct {
	Name string `json:"name"`
}

func (s *server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	u, err := s.engine.UpdateProfile(r.Context(), current(r).UserID, chi.URLParam(r, "userID"), req.Name)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}
