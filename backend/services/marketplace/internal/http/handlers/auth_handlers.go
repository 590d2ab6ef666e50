package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/auth"
)

// AuthHandlers serves accounts and tokens.
type AuthHandlers struct {
	svc    *auth.Service
	logger *zap.Logger
}

// NewAuthHandlers returns handler struct.
func NewAuthHandlers(svc *auth.Service, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{svc: svc, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	User      any    `json:"user"`
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	session, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: session.Token, TokenType: "Bearer", User: session.User})
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: session.Token, TokenType: "Bearer", User: session.User})
}

// Me handles GET /api/users/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// BecomeHost handles POST /api/users/me/host.
func (h *AuthHandlers) BecomeHost(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.BecomeHost(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
