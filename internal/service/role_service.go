package service

import (
	"context"
	"log/slog"

	"eventmaster-auth/internal/event"
	"eventmaster-auth/internal/model"
)

// RoleService manages role assignments for the admin area.
type RoleService struct {
	users   UserStore
	roles   RoleStore
	tx      Transactor
	events  event.Publisher
	metrics Recorder
}

func NewRoleService(users UserStore, roles RoleStore, tx Transactor, opts ...Option) *RoleService {
	o := applyOptions(opts)
	return &RoleService{
		users:   users,
		roles:   roles,
		tx:      tx,
		events:  o.events,
		metrics: o.metrics,
	}
}

func (s *RoleService) GetAllRoles(ctx context.Context) ([]model.RoleResponse, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	return model.ToRoleResponses(roles), nil
}

func (s *RoleService) GetRolesByUserID(ctx context.Context, userID string) ([]model.RoleResponse, error) {
	userID, ok := canonicalID(userID)
	if !ok {
		return nil, model.ErrUserNotFound
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	roles, err := s.roles.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return model.ToRoleResponses(roles), nil
}

func (s *RoleService) SetRoleToUser(ctx context.Context, actorID string, userID string, roleID string) (err error) {
	defer func() { s.metrics.ObserveAuth("set_role", err) }()

	userID, role, err := s.withUserAndRole(ctx, userID, roleID, func(ctx context.Context, userID string, roleID string) error {
		return s.roles.Assign(ctx, userID, roleID)
	})
	if err != nil {
		return err
	}

	slog.Info("role assigned", "user_id", userID, "role", role.Name, "actor_id", actorID)
	s.events.Publish(event.New(event.TypeRoleAssigned, actorID, event.RolePayload{UserID: userID, RoleID: role.ID, Role: role.Name}))
	return nil
}

func (s *RoleService) RemoveRoleFromUser(ctx context.Context, actorID string, userID string, roleID string) (err error) {
	defer func() { s.metrics.ObserveAuth("remove_role", err) }()

	userID, role, err := s.withUserAndRole(ctx, userID, roleID, func(ctx context.Context, userID string, roleID string) error {
		return s.roles.Unassign(ctx, userID, roleID)
	})
	if err != nil {
		return err
	}

	slog.Info("role removed", "user_id", userID, "role", role.Name, "actor_id", actorID)
	s.events.Publish(event.New(event.TypeRoleRemoved, actorID, event.RolePayload{UserID: userID, RoleID: role.ID, Role: role.Name}))
	return nil
}

// IsRoleInUse reports whether any user still holds the role.
func (s *RoleService) IsRoleInUse(ctx context.Context, roleID string) (model.RoleUsageResponse, error) {
	roleID, ok := canonicalID(roleID)
	if !ok {
		return model.RoleUsageResponse{}, model.ErrRoleNotFound
	}
	if _, err := s.roles.FindByID(ctx, roleID); err != nil {
		return model.RoleUsageResponse{}, err
	}

	inUse, err := s.roles.HasAssignments(ctx, roleID)
	if err != nil {
		return model.RoleUsageResponse{}, err
	}
	return model.RoleUsageResponse{RoleID: roleID, InUse: inUse}, nil
}

// withUserAndRole resolves both ends of an assignment and runs fn in the same
// transaction. fn and the caller get the canonical user id.
func (s *RoleService) withUserAndRole(ctx context.Context, userID string, roleID string, fn func(ctx context.Context, userID string, roleID string) error) (string, model.Role, error) {
	userID, ok := canonicalID(userID)
	if !ok {
		return "", model.Role{}, model.ErrUserNotFound
	}
	roleID, ok = canonicalID(roleID)
	if !ok {
		return "", model.Role{}, model.ErrRoleNotFound
	}

	var role model.Role
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.FindByID(ctx, userID); err != nil {
			return err
		}
		found, err := s.roles.FindByID(ctx, roleID)
		if err != nil {
			return err
		}
		role = found
		return fn(ctx, userID, roleID)
	})
	return userID, role, err
}
