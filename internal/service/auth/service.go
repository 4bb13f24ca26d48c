package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/platform/logger"
	"github.com/phrazzld/gatekeeper/internal/store"
)

// RegisterInput carries the fields needed to create a principal.
type RegisterInput struct {
	Identifier string
	Credential string
	FirstName  string
	LastName   string
	Role       domain.Role
}

// Session is the result of a successful registration or login.
type Session struct {
	Principal *domain.Principal
	Token     *IssuedToken
}

// Hasher hashes and verifies credentials.
type Hasher interface {
	PasswordHasher
	PasswordVerifier
}

// Service orchestrates registration and login.
type Service interface {
	// Register creates an enabled USER principal and signs it in.
	Register(ctx context.Context, in RegisterInput) (*Session, error)

	// Login verifies the credential and issues a new token. Unknown
	// identifiers, disabled principals and wrong credentials all return
	// ErrInvalidCredentials.
	Login(ctx context.Context, identifier, credential string) (*Session, error)

	// CreatePrincipal creates a principal with an explicit role without
	// signing it in. Used by administrators.
	CreatePrincipal(ctx context.Context, in RegisterInput) (*domain.Principal, error)

	// ListPrincipals returns every principal.
	ListPrincipals(ctx context.Context) ([]*domain.Principal, error)
}

type authService struct {
	principals store.PrincipalStore
	tokens     TokenService
	hasher     Hasher
	dummyHash  string
	logger     *slog.Logger
}

var _ Service = (*authService)(nil)

// NewService creates the authentication service. A throwaway hash is
// computed up front so that logins for unknown identifiers cost the same as
// logins with a wrong credential.
func NewService(
	principals store.PrincipalStore,
	tokens TokenService,
	hasher Hasher,
	log *slog.Logger,
) (Service, error) {
	if principals == nil {
		return nil, errors.New("principal store cannot be nil")
	}
	if tokens == nil {
		return nil, errors.New("token service cannot be nil")
	}
	if hasher == nil {
		return nil, errors.New("hasher cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to seed dummy credential: %w", err)
	}
	dummy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to compute dummy hash: %w", err)
	}

	return &authService{
		principals: principals,
		tokens:     tokens,
		hasher:     hasher,
		dummyHash:  dummy,
		logger:     log.With("component", "auth_service"),
	}, nil
}

func (s *authService) log(ctx context.Context) *slog.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l.With("component", "auth_service")
	}
	return s.logger
}

// Register implements Service.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Role = domain.RoleUser
	p, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.log(ctx).Info("principal registered", "principal_id", p.ID.String())
	return &Session{Principal: p, Token: token}, nil
}

// CreatePrincipal implements Service.
func (s *authService) CreatePrincipal(ctx context.Context, in RegisterInput) (*domain.Principal, error) {
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	p, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info("principal created by administrator",
		"principal_id", p.ID.String(),
		"role", string(p.Role))
	return p, nil
}

func (s *authService) create(ctx context.Context, in RegisterInput) (*domain.Principal, error) {
	identifier := domain.NormalizeIdentifier(in.Identifier)
	if err := domain.ValidateIdentifier(identifier); err != nil {
		return nil, domain.NewValidationError("email", err.Error(), err)
	}
	if !in.Role.Valid() {
		return nil, domain.NewValidationError("role", domain.ErrInvalidRole.Error(), domain.ErrInvalidRole)
	}

	if in.Credential == "" {
		return nil, domain.NewValidationError("password", "credential cannot be empty", domain.ErrEmptyCredentialHash)
	}

	exists, err := s.principals.ExistsByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to check identifier: %w", err)
	}
	if exists {
		return nil, ErrDuplicateIdentifier
	}

	hash, err := s.hasher.Hash(in.Credential)
	if err != nil {
		if errors.Is(err, ErrCredentialTooLong) {
			return nil, domain.NewValidationError("password", err.Error(), err)
		}
		return nil, err
	}

	p, err := domain.NewPrincipal(identifier, hash, in.Role)
	if err != nil {
		return nil, err
	}
	p.FirstName = in.FirstName
	p.LastName = in.LastName

	if err := s.principals.Create(ctx, p); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, store.ErrIdentifierExists) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateIdentifier, err)
		}
		return nil, fmt.Errorf("failed to persist principal: %w", err)
	}
	return p, nil
}

// Login implements Service.
func (s *authService) Login(ctx context.Context, identifier, credential string) (*Session, error) {
	log := s.log(ctx)

	p, err := s.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !store.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to look up principal: %w", err)
		}
		_ = s.hasher.Compare(s.dummyHash, credential)
		log.Debug("login rejected", "reason", "unknown identifier")
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(p.CredentialHash, credential); err != nil {
		log.Debug("login rejected", "reason", "credential mismatch", "principal_id", p.ID.String())
		return nil, ErrInvalidCredentials
	}

	if !p.Enabled {
		log.Debug("login rejected", "reason", ErrPrincipalDisabled.Error(), "principal_id", p.ID.String())
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	log.Debug("login succeeded", "principal_id", p.ID.String())
	return &Session{Principal: p, Token: token}, nil
}

// ListPrincipals implements Service.
func (s *authService) ListPrincipals(ctx context.Context) ([]*domain.Principal, error) {
	principals, err := s.principals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	return principals, nil
}
