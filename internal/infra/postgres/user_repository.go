package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/user"
)

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, platform_admin, created_at, updated_at`

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, platform_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		u.ID().String(),
		u.Email(),
		u.Name(),
		u.PasswordHash(),
		u.IsPlatformAdmin(),
		u.CreatedAt(),
		u.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q is taken", shared.ErrAlreadyExists, u.Email())
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id shared.ID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Update updates an existing user.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, password_hash = $4, platform_admin = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		u.ID().String(),
		u.Email(),
		u.Name(),
		u.PasswordHash(),
		u.IsPlatformAdmin(),
		u.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q is taken", shared.ErrAlreadyExists, u.Email())
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// IsPlatformAdmin reads the admin flag directly.
func (r *UserRepository) IsPlatformAdmin(ctx context.Context, id shared.ID) (bool, error) {
	var admin bool
	err := r.db.QueryRowContext(ctx,
		`SELECT platform_admin FROM users WHERE id = $1`, id.String()).Scan(&admin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, shared.ErrNotFound
		}
		return false, fmt.Errorf("failed to read platform admin flag: %w", err)
	}
	return admin, nil
}

func scanUser(row *sql.Row) (*user.User, error) {
	var (
		idStr, email, name, passwordHash string
		platformAdmin                    bool
		createdAt, updatedAt             time.Time
	)

	err := row.Scan(&idStr, &email, &name, &passwordHash, &platformAdmin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	id, _ := shared.IDFromString(idStr)

	return user.Reconstitute(id, email, name, passwordHash, platformAdmin, createdAt, updatedAt), nil
}
