package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// UserRepository defines persistence access for admins and technicians.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

type userRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool, timeout time.Duration) UserRepository {
	return &userRepository{pool: pool, timeout: timeout}
}

const userColumns = `id::text, name, email, password_hash, role, profile_img, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
        INSERT INTO users (name, email, password_hash, role, profile_img)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id::text, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.ProfileImg,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapStoreError(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role=$1 ORDER BY name ASC`, role)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListByIDs loads users for read-time assignee joins. Unknown ids are skipped.
func (r *userRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ProfileImg,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	result := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapStoreError(err)
		}
		result = append(result, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}
