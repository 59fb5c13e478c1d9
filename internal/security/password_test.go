package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher(bcrypt.MinCost)

	t.Run("hash then verify", func(t *testing.T) {
		hash, err := hasher.Hash("Secret123")
		require.NoError(t, err)
		require.NotEqual(t, "Secret123", hash)

		assert.True(t, hasher.Verify(hash, "Secret123"))
		assert.False(t, hasher.Verify(hash, "WrongPass"))
	})

	t.Run("salted hashes differ for equal input", func(t *testing.T) {
		first, err := hasher.Hash("Secret123")
		require.NoError(t, err)
		second, err := hasher.Hash("Secret123")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.ErrorIs(t, err, ErrEmptyPassword)
	})

	t.Run("input over the bcrypt limit is rejected", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("p", MaxPasswordBytes+1))
		require.ErrorIs(t, err, ErrPasswordTooLong)

		_, err = hasher.Hash(strings.Repeat("\u00e9", 40))
		require.ErrorIs(t, err, ErrPasswordTooLong)

		_, err = hasher.Hash(strings.Repeat("p", MaxPasswordBytes))
		require.NoError(t, err)
	})

	t.Run("malformed input verifies false", func(t *testing.T) {
		assert.False(t, hasher.Verify("not-a-bcrypt-hash", "Secret123"))
		assert.False(t, hasher.Verify("", "Secret123"))
		assert.False(t, hasher.Verify("$2a$04$", ""))
		assert.False(t, hasher.Verify("$2a$04$abc", strings.Repeat("x", 200)))
	})
}

func TestNewPasswordHasherCostFallback(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).cost)
	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(99).cost)
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(bcrypt.MinCost).cost)
}
