// Package memstore is an in-memory Credential Store used for local
// development (STORE_DRIVER=memory) and as the backing store in tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/util"
)

type txKey struct{}

type Store struct {
	// txMu serializes transactions; mu guards the maps for single reads and
	// writes.
	txMu sync.Mutex
	mu   sync.RWMutex

	users     map[string]model.User
	roles     map[string]model.Role
	userRoles map[string]model.UserRole
}

// New returns an empty store holding one active role per name.
func New(roleNames ...string) *Store {
	s := &Store{
		users:     map[string]model.User{},
		roles:     map[string]model.Role{},
		userRoles: map[string]model.UserRole{},
	}
	seen := map[string]struct{}{}
	for _, name := range roleNames {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup || name == "" {
			continue
		}
		seen[key] = struct{}{}

		role := model.Role{ID: uuid.NewString(), Name: name}
		s.roles[role.ID] = role
	}
	return s
}

func (s *Store) Users() *UserStore {
	return &UserStore{s: s}
}

func (s *Store) Roles() *RoleStore {
	return &RoleStore{s: s}
}

// WithinTx runs fn against a snapshot-protected store: if fn fails, or the
// context is done by the time fn returns, every change made through the
// store is discarded.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		return err
	}
	return ctx.Err()
}

type snapshot struct {
	users     map[string]model.User
	roles     map[string]model.Role
	userRoles map[string]model.UserRole
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return snapshot{
		users:     cloneMap(s.users),
		roles:     cloneMap(s.roles),
		userRoles: cloneMap(s.userRoles),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.roles = snap.roles
	s.userRoles = snap.userRoles
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type UserStore struct {
	s *Store
}

func (u *UserStore) FindByID(ctx context.Context, id string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok || user.IsDeleted {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (u *UserStore) FindByLogin(ctx context.Context, login string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	if user, ok := u.s.findByLoginLocked(login); ok {
		return user, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (u *UserStore) FindByRefreshToken(ctx context.Context, token string, now time.Time) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	if token == "" {
		return model.User{}, model.ErrRefreshTokenNotFound
	}

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if !user.IsDeleted && user.RefreshToken == token && user.RefreshTokenExpiry.After(now) {
			return user, nil
		}
	}
	return model.User{}, model.ErrRefreshTokenNotFound
}

func (u *UserStore) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	_, ok := u.s.findByLoginLocked(login)
	return ok, nil
}

func (u *UserStore) Create(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.findByLoginLocked(user.Login); ok {
		return model.ErrUserAlreadyExists
	}
	if _, ok := u.s.users[user.ID]; ok {
		return model.ErrUserAlreadyExists
	}

	u.s.users[user.ID] = user
	return nil
}

func (u *UserStore) UpdateRefreshToken(ctx context.Context, userID string, token string, expiry time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[userID]
	if !ok || user.IsDeleted {
		return model.ErrUserNotFound
	}

	user.RefreshToken = token
	user.RefreshTokenExpiry = expiry
	user.UpdatedAt = time.Now().UTC()
	u.s.users[userID] = user
	return nil
}

func (u *UserStore) RotateRefreshToken(ctx context.Context, userID string, current string, next string, expiry time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[userID]
	if !ok || user.IsDeleted || current == "" || user.RefreshToken != current {
		return model.ErrRefreshTokenNotFound
	}

	user.RefreshToken = next
	user.RefreshTokenExpiry = expiry
	user.UpdatedAt = time.Now().UTC()
	u.s.users[userID] = user
	return nil
}

func (u *UserStore) List(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	users := make([]model.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		if !user.IsDeleted {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Login) < strings.ToLower(users[j].Login)
	})
	return users, nil
}

func (s *Store) findByLoginLocked(login string) (model.User, bool) {
	key := util.FoldLogin(login)
	for _, user := range s.users {
		if !user.IsDeleted && util.FoldLogin(user.Login) == key {
			return user, true
		}
	}
	return model.User{}, false
}

type RoleStore struct {
	s *Store
}

func (r *RoleStore) FindByID(ctx context.Context, id string) (model.Role, error) {
	if err := ctx.Err(); err != nil {
		return model.Role{}, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	role, ok := r.s.roles[id]
	if !ok || role.IsDeleted {
		return model.Role{}, model.ErrRoleNotFound
	}
	return role, nil
}

func (r *RoleStore) FindByName(ctx context.Context, name string) (model.Role, error) {
	if err := ctx.Err(); err != nil {
		return model.Role{}, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	name = strings.TrimSpace(name)
	for _, role := range r.s.roles {
		if !role.IsDeleted && strings.EqualFold(role.Name, name) {
			return role, nil
		}
	}
	return model.Role{}, model.ErrRoleNotFound
}

func (r *RoleStore) List(ctx context.Context) ([]model.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	roles := make([]model.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		if !role.IsDeleted {
			roles = append(roles, role)
		}
	}
	sortRoles(roles)
	return roles, nil
}

func (r *RoleStore) ListByUserID(ctx context.Context, userID string) ([]model.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	roles := make([]model.Role, 0)
	for _, ur := range r.s.userRoles {
		if ur.IsDeleted || ur.UserID != userID {
			continue
		}
		if role, ok := r.s.roles[ur.RoleID]; ok && !role.IsDeleted {
			roles = append(roles, role)
		}
	}
	sortRoles(roles)
	return roles, nil
}

func (r *RoleStore) Assign(ctx context.Context, userID string, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.activeAssignmentLocked(userID, roleID); ok {
		return model.ErrRoleAlreadyAssigned
	}

	ur := model.UserRole{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoleID:    roleID,
		CreatedAt: time.Now().UTC(),
	}
	r.s.userRoles[ur.ID] = ur
	return nil
}

func (r *RoleStore) Unassign(ctx context.Context, userID string, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ur, ok := r.s.activeAssignmentLocked(userID, roleID)
	if !ok {
		return model.ErrRoleNotAssigned
	}

	ur.IsDeleted = true
	r.s.userRoles[ur.ID] = ur
	return nil
}

func (r *RoleStore) HasAssignments(ctx context.Context, roleID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, ur := range r.s.userRoles {
		if !ur.IsDeleted && ur.RoleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) activeAssignmentLocked(userID string, roleID string) (model.UserRole, bool) {
	for _, ur := range s.userRoles {
		if !ur.IsDeleted && ur.UserID == userID && ur.RoleID == roleID {
			return ur, true
		}
	}
	return model.UserRole{}, false
}

func sortRoles(roles []model.Role) {
	sort.Slice(roles, func(i, j int) bool {
		return strings.ToLower(roles[i].Name) < strings.ToLower(roles[j].Name)
	})
}
