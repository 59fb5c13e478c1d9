//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"eventmaster-auth/internal/database"
	"eventmaster-auth/internal/model"
)

// newTestDB connects to DATABASE_URL, applies migrations and wipes user
// data. Seeded roles are kept.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, url, 4, 0)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))

	_, err = db.Pool.Exec(ctx, `TRUNCATE user_roles, users`)
	require.NoError(t, err)

	return db
}

func newUser(login string) model.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.User{
		ID:           uuid.NewString(),
		Login:        login,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db.Pool)

	alice := newUser("Alice")
	require.NoError(t, users.Create(ctx, alice))
	require.ErrorIs(t, users.Create(ctx, newUser("alice")), model.ErrUserAlreadyExists)

	found, err := users.FindByLogin(ctx, " ALICE ")
	require.NoError(t, err)
	require.Equal(t, alice.ID, found.ID)

	exists, err := users.ExistsByLogin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = users.FindByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, model.ErrUserNotFound)

	now := time.Now().UTC()
	require.NoError(t, users.UpdateRefreshToken(ctx, alice.ID, "token-1", now.Add(time.Hour)))

	found, err = users.FindByRefreshToken(ctx, "token-1", now)
	require.NoError(t, err)
	require.Equal(t, alice.ID, found.ID)

	_, err = users.FindByRefreshToken(ctx, "token-1", now.Add(2*time.Hour))
	require.ErrorIs(t, err, model.ErrRefreshTokenNotFound)

	_, err = users.FindByRefreshToken(ctx, "", now)
	require.ErrorIs(t, err, model.ErrRefreshTokenNotFound)

	require.NoError(t, users.RotateRefreshToken(ctx, alice.ID, "token-1", "token-2", now.Add(time.Hour)))
	require.ErrorIs(t, users.RotateRefreshToken(ctx, alice.ID, "token-1", "token-3", now.Add(time.Hour)), model.ErrRefreshTokenNotFound)

	require.NoError(t, users.UpdateRefreshToken(ctx, alice.ID, "", model.RevokedRefreshExpiry))
	_, err = users.FindByRefreshToken(ctx, "token-2", now)
	require.ErrorIs(t, err, model.ErrRefreshTokenNotFound)

	require.ErrorIs(t, users.UpdateRefreshToken(ctx, uuid.NewString(), "x", now), model.ErrUserNotFound)

	require.NoError(t, users.Create(ctx, newUser("bob")))
	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Alice", list[0].Login)
	require.Equal(t, "bob", list[1].Login)
}

func TestRoleRepository_AssignAndUnassign(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db.Pool)
	roles := NewRoleRepository(db.Pool)

	all, err := roles.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Admin", "Resident"}, model.RoleNames(all))

	admin, err := roles.FindByName(ctx, "admin")
	require.NoError(t, err)
	_, err = roles.FindByName(ctx, "Missing")
	require.ErrorIs(t, err, model.ErrRoleNotFound)
	_, err = roles.FindByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, model.ErrRoleNotFound)

	alice := newUser("alice")
	require.NoError(t, users.Create(ctx, alice))

	inUse, err := roles.HasAssignments(ctx, admin.ID)
	require.NoError(t, err)
	require.False(t, inUse)

	require.NoError(t, roles.Assign(ctx, alice.ID, admin.ID))
	require.ErrorIs(t, roles.Assign(ctx, alice.ID, admin.ID), model.ErrRoleAlreadyAssigned)

	inUse, err = roles.HasAssignments(ctx, admin.ID)
	require.NoError(t, err)
	require.True(t, inUse)

	assigned, err := roles.ListByUserID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Admin"}, model.RoleNames(assigned))

	require.NoError(t, roles.Unassign(ctx, alice.ID, admin.ID))
	require.ErrorIs(t, roles.Unassign(ctx, alice.ID, admin.ID), model.ErrRoleNotAssigned)

	assigned, err = roles.ListByUserID(ctx, alice.ID)
	require.NoError(t, err)
	require.Empty(t, assigned)

	inUse, err = roles.HasAssignments(ctx, admin.ID)
	require.NoError(t, err)
	require.False(t, inUse)

	// A soft-deleted assignment does not block a new one.
	require.NoError(t, roles.Assign(ctx, alice.ID, admin.ID))
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db.Pool)
	roles := NewRoleRepository(db.Pool)
	tx := NewTxManager(db.Pool)

	resident, err := roles.FindByName(ctx, "Resident")
	require.NoError(t, err)

	boom := errors.New("boom")
	alice := newUser("alice")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := users.Create(ctx, alice); err != nil {
			return err
		}
		if err := roles.Assign(ctx, alice.ID, resident.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = users.FindByID(ctx, alice.ID)
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestTxManager_NestedCallsShareTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db.Pool)
	tx := NewTxManager(db.Pool)

	alice := newUser("alice")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			return users.Create(ctx, alice)
		})
	})
	require.NoError(t, err)

	_, err = users.FindByID(ctx, alice.ID)
	require.NoError(t, err)
}

func TestTxManager_CancelledContextRollsBack(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db.Pool)
	tx := NewTxManager(db.Pool)

	ctx, cancel := context.WithCancel(context.Background())
	alice := newUser("alice")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := users.Create(ctx, alice); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = users.FindByID(context.Background(), alice.ID)
	require.ErrorIs(t, err, model.ErrUserNotFound)
}
