package auth

import (
	"context"
	"time"

	"github.com/phrazzld/gatekeeper/internal/domain"
)

// TokenService creates and verifies signed, time-bounded identity tokens.
// Implementations are pure apart from reading the clock and must be safe for
// concurrent use.
type TokenService interface {
	// Issue signs a token whose subject is the principal's identifier.
	Issue(ctx context.Context, principal *domain.Principal) (*IssuedToken, error)

	// Validate verifies signature and expiry and returns the claims.
	// Malformed input yields ErrInvalidToken, never a panic.
	Validate(ctx context.Context, token string) (*Claims, error)

	// ExtractSubject decodes the subject without verifying the token.
	// The result must never be treated as authentication.
	ExtractSubject(token string) (string, bool)
}

// IssuedToken is a freshly signed token and its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	Role      domain.Role
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
