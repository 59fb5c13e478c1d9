package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventmaster-auth/internal/model"
)

const userColumns = `id::text, login, password_hash, refresh_token, refresh_token_expiry,
		        is_deleted, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.RefreshToken, &u.RefreshTokenExpiry,
		&u.IsDeleted, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users WHERE id = $1::uuid AND NOT is_deleted`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByLogin(ctx context.Context, login string) (model.User, error) {
	u, err := scanUser(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users WHERE lower(login) = lower($1) AND NOT is_deleted`, strings.TrimSpace(login)))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by login: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByRefreshToken(ctx context.Context, token string, now time.Time) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrRefreshTokenNotFound
	}

	u, err := scanUser(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE refresh_token = $1 AND refresh_token_expiry > $2 AND NOT is_deleted`, token, now))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrRefreshTokenNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by refresh token: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(login) = lower($1) AND NOT is_deleted)`,
		strings.TrimSpace(login)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check login exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO users (id, login, password_hash, refresh_token, refresh_token_expiry, is_deleted, created_at, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, false, $6, $7)`,
		u.ID, u.Login, u.PasswordHash, u.RefreshToken, u.RefreshTokenExpiry, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateRefreshToken(ctx context.Context, userID string, token string, expiry time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET refresh_token = $2, refresh_token_expiry = $3, updated_at = $4
		 WHERE id = $1::uuid AND NOT is_deleted`,
		userID, token, expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// RotateRefreshToken swaps the refresh token only while the user still holds
// current, so concurrent refreshes with the same token cannot both succeed.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID string, current string, next string, expiry time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET refresh_token = $3, refresh_token_expiry = $4, updated_at = $5
		 WHERE id = $1::uuid AND refresh_token = $2 AND NOT is_deleted`,
		userID, current, next, expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRefreshTokenNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT is_deleted ORDER BY lower(login)`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
