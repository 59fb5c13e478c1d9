package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventmaster-auth/internal/model"
)

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func (r *RoleRepository) FindByID(ctx context.Context, id string) (model.Role, error) {
	var role model.Role
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id::text, name FROM roles WHERE id = $1::uuid AND NOT is_deleted`, id).
		Scan(&role.ID, &role.Name)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Role{}, model.ErrRoleNotFound
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("find role by id: %w", err)
	}
	return role, nil
}

func (r *RoleRepository) FindByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id::text, name FROM roles WHERE lower(name) = lower($1) AND NOT is_deleted`,
		strings.TrimSpace(name)).Scan(&role.ID, &role.Name)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Role{}, model.ErrRoleNotFound
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("find role by name: %w", err)
	}
	return role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]model.Role, error) {
	return r.queryRoles(ctx, "list roles",
		`SELECT id::text, name FROM roles WHERE NOT is_deleted ORDER BY lower(name)`)
}

func (r *RoleRepository) ListByUserID(ctx context.Context, userID string) ([]model.Role, error) {
	return r.queryRoles(ctx, "list roles by user",
		`SELECT r.id::text, r.name
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = $1::uuid AND NOT ur.is_deleted AND NOT r.is_deleted
		 ORDER BY lower(r.name)`, userID)
}

func (r *RoleRepository) Assign(ctx context.Context, userID string, roleID string) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO user_roles (id, user_id, role_id, is_deleted, created_at)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, false, $4)`,
		uuid.NewString(), userID, roleID, time.Now().UTC())
	if isUniqueViolation(err) {
		return model.ErrRoleAlreadyAssigned
	}
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *RoleRepository) Unassign(ctx context.Context, userID string, roleID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE user_roles SET is_deleted = true
		 WHERE user_id = $1::uuid AND role_id = $2::uuid AND NOT is_deleted`,
		userID, roleID)
	if err != nil {
		return fmt.Errorf("unassign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRoleNotAssigned
	}
	return nil
}

func (r *RoleRepository) HasAssignments(ctx context.Context, roleID string) (bool, error) {
	var inUse bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE role_id = $1::uuid AND NOT is_deleted)`,
		roleID).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("check role assignments: %w", err)
	}
	return inUse, nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, op string, sql string, args ...any) ([]model.Role, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	roles := make([]model.Role, 0)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
