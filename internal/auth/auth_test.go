package auth

import (
	"testing"

	"github.com/ksred/market-sim/internal/database"
	"github.com/ksred/market-sim/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	gormDB, err := database.NewTestDatabase()
	require.NoError(t, err)
	return NewService(gormDB, "test-secret"), gormDB
}

func createUser(t *testing.T, db *gorm.DB, active bool) *types.User {
	t.Helper()

	user := &types.User{
		Email:     "trader@example.com",
		APIKey:    "test-api-key",
		APISecret: "test-api-secret",
		IsActive:  true,
	}
	require.NoError(t, db.Create(user).Error)
	if !active {
		// The column defaults to true, so a zero-valued bool is dropped on
		// insert; deactivation has to be an explicit update.
		require.NoError(t, db.Model(user).Update("is_active", false).Error)
		user.IsActive = false
	}
	return user
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, true)

	token, err := svc.GenerateToken(Credentials{APIKey: "test-api-key", APISecret: "test-api-secret"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc, db := newTestService(t)
	createUser(t, db, true)

	cases := []struct {
		name  string
		creds Credentials
	}{
		{"unknown key", Credentials{APIKey: "nope", APISecret: "test-api-secret"}},
		{"wrong secret", Credentials{APIKey: "test-api-key", APISecret: "nope"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GenerateToken(tc.creds)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestGenerateTokenRejectsInactiveUser(t *testing.T) {
	svc, db := newTestService(t)
	createUser(t, db, false)

	_, err := svc.GenerateToken(Credentials{APIKey: "test-api-key", APISecret: "test-api-secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, db := newTestService(t)
	createUser(t, db, true)

	token, err := svc.GenerateToken(Credentials{APIKey: "test-api-key", APISecret: "test-api-secret"})
	require.NoError(t, err)

	other := NewService(db, "different-secret")
	_, err = other.ValidateToken(token.Token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}
