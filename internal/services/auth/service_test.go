package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"campusmarket/internal/logging"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/repositories/repotest"
	"campusmarket/internal/services/auth"
	"campusmarket/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func seedOperator(t *testing.T, repo repositories.OperatorRepository, email, password string, active bool) *models.Operator {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	op := &models.Operator{Email: email, Name: "Ops", PasswordHash: hash, Role: models.RoleAdmin, Active: active, TokenVersion: 1}
	require.NoError(t, repo.Create(context.Background(), op))
	return op
}

func TestLogin(t *testing.T) {
	store := repotest.NewStore(t)
	svc := auth.NewService(store.Operators, secret, time.Hour, logging.Discard())
	op := seedOperator(t, store.Operators, "ops@campus.test", "hunter22!", true)
	seedOperator(t, store.Operators, "gone@campus.test", "hunter22!", false)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "ops@campus.test", "hunter22!", nil},
		{"email is case-insensitive", "  OPS@campus.test ", "hunter22!", nil},
		{"wrong password", "ops@campus.test", "hunter23!", auth.ErrInvalidCredentials},
		{"unknown operator", "who@campus.test", "hunter22!", auth.ErrInvalidCredentials},
		{"inactive operator", "gone@campus.test", "hunter22!", auth.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, token, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, op.ID, got.ID)

			claims, err := utils.ParseToken(token, secret)
			require.NoError(t, err)
			assert.Equal(t, op.ID, claims.UserID)
			assert.Equal(t, models.RoleAdmin, claims.Role)
			assert.Contains(t, claims.Permissions, models.PermissionEscrowRelease)
		})
	}
}

func TestAuthenticateUserToken(t *testing.T) {
	store := repotest.NewStore(t)
	svc := auth.NewService(store.Operators, secret, time.Hour, logging.Discard())

	token, err := utils.GenerateToken(&models.UserClaims{UserID: "student-7"}, secret, time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "student-7", claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role, "missing role defaults to user")
}

func TestAuthenticateRejectsForgedOperator(t *testing.T) {
	store := repotest.NewStore(t)
	svc := auth.NewService(store.Operators, secret, time.Hour, logging.Discard())

	token, err := utils.GenerateToken(&models.UserClaims{UserID: "not-an-operator", Role: models.RoleAdmin, TokenVersion: 1}, secret, time.Hour, time.Now())
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, utils.ErrInvalidToken)
}

func TestLogoutRevokesTokens(t *testing.T) {
	store := repotest.NewStore(t)
	svc := auth.NewService(store.Operators, secret, time.Hour, logging.Discard())
	ctx := context.Background()
	op := seedOperator(t, store.Operators, "ops@campus.test", "hunter22!", true)

	_, token, err := svc.Login(ctx, "ops@campus.test", "hunter22!")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, op.ID))

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)

	_, fresh, err := svc.Login(ctx, "ops@campus.test", "hunter22!")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, fresh)
	assert.NoError(t, err)
}

func TestCheckPasswordPolicy(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"hunter22!", true},
		{"short!", false},
		{"nosymbolshere", false},
		{strings.Repeat("a", 72) + "!", false},
	}
	for _, tt := range tests {
		err := auth.CheckPasswordPolicy(tt.password)
		if tt.ok {
			assert.NoError(t, err, tt.password)
		} else {
			assert.ErrorIs(t, err, auth.ErrWeakPassword, tt.password)
		}
	}
}

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw, err := auth.GeneratePassword()
		require.NoError(t, err)
		require.NoError(t, auth.CheckPasswordPolicy(pw))
		assert.False(t, seen[pw])
		seen[pw] = true
	}
}
