package api

import (
	"net/http"

	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
)

// UserHandler serves principal management and the caller's own identity.
// Role checks are applied by the router, not here.
type UserHandler struct {
	service auth.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service auth.Service) *UserHandler {
	return &UserHandler{service: service}
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principals, err := h.service.ListPrincipals(r.Context())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	users := make([]UserResponse, 0, len(principals))
	for _, p := range principals {
		users = append(users, newUserResponse(p))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, users)
}

// Create handles POST /users. The principal is created with the requested
// role and is not signed in.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		HandleAPIError(w, r, domain.NewValidationError("role", "must be one of [ADMIN USER]", err))
		return
	}

	principal, err := h.service.CreatePrincipal(r.Context(), auth.RegisterInput{
		Identifier: req.Email,
		Credential: req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       role,
	})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, newUserResponse(principal))
}

// Me handles GET /me, returning the caller's authenticated context.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := shared.AuthenticatedFrom(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newMeResponse(authCtx))
}
