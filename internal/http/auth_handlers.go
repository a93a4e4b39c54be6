package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/models"
	"tradehub-admin/internal/services"

	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   int64        `json:"expiresAt"`
	SessionID   string       `json:"sessionId"`
	User        *models.User `json:"user"`
}

var loginSchema = form.Schema{
	"email":    {form.Required("Email is required")},
	"password": {form.Required("Password is required")},
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapServiceError(w, err)
		return
	}
	f := form.New(loginSchema, form.Values{}, form.Options{ValidateOnSubmit: true})
	f.SetField("email", strings.ToLower(strings.TrimSpace(req.Email)))
	f.SetField("password", req.Password)
	if err := f.Submit(nil); err != nil {
		mapServiceError(w, &services.ValidationError{Table: "auth", Fields: f.Errors()})
		return
	}

	user, err := services.FindUserByEmail(r.Context(), s.DB, req.Email)
	if err != nil {
		var serr services.ServiceError
		if errors.As(err, &serr) {
			WriteError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		writeFailure(w, r, err)
		return
	}
	if !s.Tokens.VerifyPassword(req.Password, user.PasswordHash) {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	if user.Status != "active" {
		WriteError(w, http.StatusForbidden, "Account suspended")
		return
	}

	sess := s.Sessions.Start(user.ID, user.Email, user.Role)
	access, exp, err := s.Tokens.CreateAccessToken(user.ID, user.Email, user.Role, sess.ID)
	if err != nil {
		s.Sessions.End(sess.ID)
		writeFailure(w, r, err)
		return
	}
	if err := services.SetLastLogin(r.Context(), s.DB, user.ID); err != nil {
		logging.FromContext(r.Context()).Warn("record last login", zap.Error(err))
	}
	logging.FromContext(r.Context()).Info("login", zap.String("user_id", user.ID), zap.String("session_id", sess.ID))
	WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: access,
		ExpiresAt:   exp,
		SessionID:   sess.ID,
		User:        &user,
	})
}

// Logout ends the caller's session; its tokens stop working immediately.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := CurrentSession(r); sess != nil {
		s.Sessions.End(sess.ID)
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type MeResponse struct {
	SessionID string `json:"sessionId"`
	User      any    `json:"user"`
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	sess := CurrentSession(r)
	user, err := s.Catalog["users"].Get(r.Context(), sess.UserID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MeResponse{SessionID: sess.ID, User: user})
}
