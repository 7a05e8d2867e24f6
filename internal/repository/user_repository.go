package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kondiv/shop/internal/domain"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sqlx.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, login, username, password_hash, role, created_at`

// Create inserts a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := sqlx.NamedExecContext(ctx, getExecutor(ctx, r.db), `
		INSERT INTO users (id, login, username, password_hash, role, created_at)
		VALUES (:id, :login, :username, :password_hash, :role, :created_at)
	`, user)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return domain.Conflict("Login already taken")
		}
		r.logger.Error("failed to create user",
			slog.String("login", user.Login),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByLogin retrieves a user by login, ignoring case
func (r *PostgresUserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(login) = LOWER($1)`, login)
}

// ExistsByLogin reports whether the login is taken
func (r *PostgresUserRepository) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, getExecutor(ctx, r.db), &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(login) = LOWER($1))`, login)
	if err != nil {
		return false, fmt.Errorf("failed to check login: %w", err)
	}
	return exists, nil
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user := &domain.User{}
	if err := sqlx.GetContext(ctx, getExecutor(ctx, r.db), user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
