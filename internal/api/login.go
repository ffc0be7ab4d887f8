package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/auth"
	"github.com/snarg/listen-engine/internal/repo"
)

// LoginHandler exchanges one-time login codes for bearer tokens.
type LoginHandler struct {
	resolver *auth.Resolver
	log      zerolog.Logger
}

// NewLoginHandler creates a login handler.
func NewLoginHandler(resolver *auth.Resolver, log zerolog.Logger) *LoginHandler {
	return &LoginHandler{
		resolver: resolver,
		log:      log.With().Str("handler", "login").Logger(),
	}
}

// Routes registers the login endpoint.
func (h *LoginHandler) Routes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

type loginRequest struct {
	LoginCode string `json:"login_code"`
	Role      string `json:"role"`
}

type loginResponse struct {
	Token     string `json:"token"`
	AccountID int64  `json:"account_id"`
	Role      string `json:"role"`
	ElderID   int64  `json:"elder_id,omitempty"`
}

// Login handles POST /auth/login.
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.LoginCode == "" {
		WriteError(w, http.StatusBadRequest, "login_code is required")
		return
	}
	role := repo.Role(req.Role)
	if !role.Valid() {
		WriteError(w, http.StatusBadRequest, "role must be elder or caregiver")
		return
	}

	res, err := h.resolver.Exchange(r.Context(), req.LoginCode, role)
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		WriteError(w, http.StatusUnauthorized, "invalid login code")
	case errors.Is(err, auth.ErrRoleConflict):
		WriteError(w, http.StatusConflict, "identity already bound to another role")
	case err != nil:
		h.log.Error().Err(err).Msg("login exchange failed")
		WriteError(w, http.StatusBadGateway, "login provider unavailable")
	default:
		WriteJSON(w, http.StatusOK, loginResponse{
			Token:     res.Token,
			AccountID: res.AccountID,
			Role:      string(res.Role),
			ElderID:   res.ElderID,
		})
	}
}
