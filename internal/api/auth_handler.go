package api

import (
	"net/http"

	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
)

// AuthHandler handles the public authentication endpoints.
type AuthHandler struct {
	service auth.Service
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(service auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register handles POST /auth/register. New principals always get the USER
// role and are signed in immediately.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), auth.RegisterInput{
		Identifier: req.Email,
		Credential: req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       domain.RoleUser,
	})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated,
		newAuthResponse(session.Token.Token, session.Token.ExpiresAt))
}

// Login handles POST /auth/login and its /auth/authenticate alias.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK,
		newAuthResponse(session.Token.Token, session.Token.ExpiresAt))
}
