package mocks

import (
	"context"
	"time"

	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
)

// MockTokenService implements auth.TokenService for testing.
type MockTokenService struct {
	IssueFn          func(ctx context.Context, p *domain.Principal) (*auth.IssuedToken, error)
	ValidateFn       func(ctx context.Context, token string) (*auth.Claims, error)
	ExtractSubjectFn func(token string) (string, bool)

	// Claims returned by Validate when ValidateFn is nil.
	Claims *auth.Claims
	// ValidateErr is returned by Validate when ValidateFn is nil.
	ValidateErr error
}

var _ auth.TokenService = (*MockTokenService)(nil)

// Issue implements auth.TokenService. The default token is "token-for:<identifier>".
func (m *MockTokenService) Issue(ctx context.Context, p *domain.Principal) (*auth.IssuedToken, error) {
	if m.IssueFn != nil {
		return m.IssueFn(ctx, p)
	}
	return &auth.IssuedToken{
		Token:     "token-for:" + p.Identifier,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// Validate implements auth.TokenService.
func (m *MockTokenService) Validate(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateFn != nil {
		return m.ValidateFn(ctx, token)
	}
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	return m.Claims, nil
}

// ExtractSubject implements auth.TokenService.
func (m *MockTokenService) ExtractSubject(token string) (string, bool) {
	if m.ExtractSubjectFn != nil {
		return m.ExtractSubjectFn(token)
	}
	if m.Claims != nil {
		return m.Claims.Subject, true
	}
	return "", false
}
