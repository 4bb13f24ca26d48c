package api

import (
	"time"

	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/domain"
)

// RegisterRequest defines the payload for the self-registration endpoint.
type RegisterRequest struct {
	Email     string `json:"email"      validate:"required,email"`
	Password  string `json:"password"   validate:"required,min=6,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name"  validate:"max=100"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreateUserRequest defines the payload for administrative principal creation.
type CreateUserRequest struct {
	Email     string `json:"email"      validate:"required,email"`
	Password  string `json:"password"   validate:"required,min=6,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name"  validate:"max=100"`
	Role      string `json:"role"       validate:"required"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	Token string `json:"token"`

	// ExpiresAt is the RFC 3339 timestamp when the token expires
	ExpiresAt string `json:"expires_at,omitempty"`
}

// UserResponse is the public view of a principal. It never includes the
// credential hash.
type UserResponse struct {
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
}

// MeResponse describes the caller's authenticated context.
type MeResponse struct {
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	Authorities []string    `json:"authorities"`
}

func newAuthResponse(token string, expiresAt time.Time) AuthResponse {
	resp := AuthResponse{Token: token}
	if !expiresAt.IsZero() {
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func newUserResponse(p *domain.Principal) UserResponse {
	return UserResponse{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Identifier,
		Role:      p.Role,
	}
}

func newMeResponse(a *shared.AuthenticatedContext) MeResponse {
	return MeResponse{
		Email:       a.Identifier,
		Role:        a.Role,
		Authorities: a.Authorities,
	}
}
