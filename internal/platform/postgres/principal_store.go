package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/platform/logger"
	"github.com/phrazzld/gatekeeper/internal/redact"
	"github.com/phrazzld/gatekeeper/internal/store"
)

const principalColumns = `id, email, first_name, last_name, credential_hash, role, enabled, created_at, updated_at`

// PostgresPrincipalStore implements store.PrincipalStore using a PostgreSQL
// database as the storage backend.
type PostgresPrincipalStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPrincipalStore creates a new PostgreSQL implementation of the
// PrincipalStore interface. It accepts a database connection or transaction
// that is initialized and managed by the caller.
func NewPostgresPrincipalStore(db store.DBTX, log *slog.Logger) *PostgresPrincipalStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresPrincipalStore{
		db:     db,
		logger: log.With(slog.String("component", "principal_store")),
	}
}

// Ensure PostgresPrincipalStore implements store.PrincipalStore interface
var _ store.PrincipalStore = (*PostgresPrincipalStore)(nil)

func (s *PostgresPrincipalStore) log(ctx context.Context) *slog.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l.With(slog.String("component", "principal_store"))
	}
	return s.logger
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*domain.Principal, error) {
	var p domain.Principal
	var role string
	if err := row.Scan(
		&p.ID,
		&p.Identifier,
		&p.FirstName,
		&p.LastName,
		&p.CredentialHash,
		&role,
		&p.Enabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	return &p, nil
}

// FindByIdentifier implements store.PrincipalFinder.
// The identifier is normalized before lookup, so lookups are case-insensitive.
func (s *PostgresPrincipalStore) FindByIdentifier(
	ctx context.Context,
	identifier string,
) (*domain.Principal, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log(ctx).Debug("principal not found")
			return nil, store.ErrPrincipalNotFound
		}
		s.log(ctx).Error("failed to query principal", slog.String("error", redact.Error(err)))
		return nil, store.NewStoreError("principal", "find", "failed to query principal", MapError(err))
	}
	return p, nil
}

// ExistsByIdentifier implements store.PrincipalFinder.
func (s *PostgresPrincipalStore) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM principals WHERE email = $1)`, identifier,
	).Scan(&exists)
	if err != nil {
		s.log(ctx).Error("failed to check principal existence", slog.String("error", redact.Error(err)))
		return false, store.NewStoreError("principal", "exists", "failed to check existence", MapError(err))
	}
	return exists, nil
}

// Create implements store.PrincipalStore.
// It validates the principal first and maps a unique violation on the
// identifier to store.ErrIdentifierExists.
func (s *PostgresPrincipalStore) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Identifier, p.FirstName, p.LastName, p.CredentialHash,
		string(p.Role), p.Enabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			s.log(ctx).Debug("principal identifier already exists")
			return store.ErrIdentifierExists
		}
		s.log(ctx).Error("failed to insert principal", slog.String("error", redact.Error(err)))
		return store.NewStoreError("principal", "create", "failed to insert principal", MapError(err))
	}

	s.log(ctx).Info("principal created",
		slog.String("principal_id", p.ID.String()),
		slog.String("role", string(p.Role)))
	return nil
}

// List implements store.PrincipalStore, ordered by creation time.
func (s *PostgresPrincipalStore) List(ctx context.Context) ([]*domain.Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals ORDER BY created_at, email`)
	if err != nil {
		s.log(ctx).Error("failed to list principals", slog.String("error", redact.Error(err)))
		return nil, store.NewStoreError("principal", "list", "failed to list principals", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.log(ctx).Warn("failed to close rows", slog.String("error", redact.Error(cerr)))
		}
	}()

	principals := make([]*domain.Principal, 0)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, store.NewStoreError("principal", "list", "failed to scan principal", MapError(err))
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("principal", "list", "failed to iterate principals", MapError(err))
	}
	return principals, nil
}
