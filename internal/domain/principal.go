package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Role is the authorization role of a principal.
type Role string

const (
	// RoleAdmin has full access, including principal management.
	RoleAdmin Role = "ADMIN"

	// RoleUser is the default role assigned at self-registration.
	RoleUser Role = "USER"
)

// identifierValidator is only used for the email rule, which is safe for
// concurrent use once constructed.
var identifierValidator = validator.New()

// ParseRole converts a case-insensitive role name into a Role.
// Both "ADMIN" and the prefixed "ROLE_ADMIN" forms are accepted.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "ROLE_")
	switch Role(name) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Authority returns the granted-authority name for the role, e.g. "ROLE_ADMIN".
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

// Principal is a registered identity with a one-way credential hash.
type Principal struct {
	ID             uuid.UUID `json:"id"`
	Identifier     string    `json:"email"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	CredentialHash string    `json:"-"` // never serialized
	Role           Role      `json:"role"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeIdentifier lowercases and trims an identifier so that lookups are
// case-insensitive.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// ValidateIdentifier checks that the identifier is a non-empty email address.
func ValidateIdentifier(identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return ErrEmptyIdentifier
	}
	if err := identifierValidator.Var(identifier, "email"); err != nil {
		return ErrInvalidIdentifier
	}
	return nil
}

// NewPrincipal builds an enabled principal for the given identifier and
// already-hashed credential. The identifier is normalized.
func NewPrincipal(identifier, credentialHash string, role Role) (*Principal, error) {
	now := time.Now().UTC()
	p := &Principal{
		ID:             uuid.New(),
		Identifier:     NormalizeIdentifier(identifier),
		CredentialHash: credentialHash,
		Role:           role,
		Enabled:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks if the Principal has valid data.
func (p *Principal) Validate() error {
	if err := ValidateIdentifier(p.Identifier); err != nil {
		return NewValidationError("email", err.Error(), err)
	}
	if p.CredentialHash == "" {
		return NewValidationError("password", ErrEmptyCredentialHash.Error(), ErrEmptyCredentialHash)
	}
	if !p.Role.Valid() {
		return NewValidationError("role", ErrInvalidRole.Error(), ErrInvalidRole)
	}
	return nil
}

// Authorities lists the granted authorities derived from the principal's role.
func (p *Principal) Authorities() []string {
	return []string{p.Role.Authority()}
}
