package store

import (
	"context"

	"github.com/phrazzld/gatekeeper/internal/domain"
)

// PrincipalFinder is the read capability the request gate and login need.
type PrincipalFinder interface {
	// FindByIdentifier returns the principal with the given (normalized)
	// identifier. Returns ErrPrincipalNotFound if none exists.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error)

	// ExistsByIdentifier reports whether a principal with the identifier exists
	// without loading it.
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)
}

// PrincipalStore adds the write and administrative list capabilities used by
// registration and principal management.
type PrincipalStore interface {
	PrincipalFinder

	// Create persists a new principal.
	// Returns ErrIdentifierExists if the identifier is already taken, including
	// when a concurrent registration wins the race.
	Create(ctx context.Context, principal *domain.Principal) error

	// List returns all principals ordered by creation time.
	List(ctx context.Context) ([]*domain.Principal, error)
}
