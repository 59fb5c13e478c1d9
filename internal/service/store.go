package service

import (
	"context"
	"time"

	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/security"
)

// UserStore is the user half of the Credential Store. Implementations return
// the model sentinel errors (ErrUserNotFound, ErrUserAlreadyExists,
// ErrRefreshTokenNotFound) and only ever see active rows.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByLogin(ctx context.Context, login string) (model.User, error)
	FindByRefreshToken(ctx context.Context, token string, now time.Time) (model.User, error)
	ExistsByLogin(ctx context.Context, login string) (bool, error)
	Create(ctx context.Context, user model.User) error
	UpdateRefreshToken(ctx context.Context, userID string, token string, expiry time.Time) error
	RotateRefreshToken(ctx context.Context, userID string, current string, next string, expiry time.Time) error
	List(ctx context.Context) ([]model.User, error)
}

type RoleStore interface {
	FindByID(ctx context.Context, id string) (model.Role, error)
	FindByName(ctx context.Context, name string) (model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	ListByUserID(ctx context.Context, userID string) ([]model.Role, error)
	Assign(ctx context.Context, userID string, roleID string) error
	Unassign(ctx context.Context, userID string, roleID string) error
	HasAssignments(ctx context.Context, roleID string) (bool, error)
}

// Transactor runs fn as one unit of work; the store calls made with the
// context passed to fn commit or roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash string, plaintext string) bool
}

type TokenIssuer interface {
	GenerateAccessToken(claims security.ClaimSet) (string, error)
	GenerateRefreshToken() (string, error)
}

type Recorder interface {
	ObserveAuth(operation string, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAuth(string, error) {}
