package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}

func newAuthService(t *testing.T, pwCfg config.PasswordConfig) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		UserRepo:       users.NewRepository(conn),
		JWTConfig:      testJWT,
		PasswordConfig: pwCfg,
		Now:            func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	return svc, conn
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
}

func TestRegisterThenLogin(t *testing.T) {
	svc, conn := newAuthService(t, config.PasswordConfig{})
	ctx := context.Background()
	city := " Haifa "

	reg, err := svc.Register(ctx, RegisterRequest{
		Email:     " Noa@Example.com ",
		Password:  "correct horse",
		FirstName: "Noa",
		LastName:  "Cohen",
		City:      &city,
	})
	require.NoError(t, err)
	assert.Equal(t, "noa@example.com", reg.User.Email)
	require.NotNil(t, reg.User.City)
	assert.Equal(t, "Haifa", *reg.User.City)
	assert.Equal(t, "Bearer", reg.TokenType)

	claims, err := pkgAuth.ParseAccessToken(testJWT, reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	var stored models.User
	require.NoError(t, conn.First(&stored, "id = ?", reg.User.ID).Error)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)

	login, err := svc.Login(ctx, LoginRequest{Email: "NOA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)
	require.NotNil(t, login.User.LastLoginAt)
}

func TestRegisterRejects(t *testing.T) {
	svc, _ := newAuthService(t, config.PasswordConfig{})
	ctx := context.Background()
	base := RegisterRequest{Email: "dup@example.com", Password: "long enough", FirstName: "A", LastName: "B"}
	_, err := svc.Register(ctx, base)
	require.NoError(t, err)

	_, err = svc.Register(ctx, base)
	requireCode(t, err, pkgerrors.CodeConflict)

	weak := base
	weak.Email = "weak@example.com"
	weak.Password = "short"
	_, err = svc.Register(ctx, weak)
	requireCode(t, err, pkgerrors.CodeValidation)

	nameless := base
	nameless.Email = "nameless@example.com"
	nameless.FirstName = "  "
	_, err = svc.Register(ctx, nameless)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, conn := newAuthService(t, config.PasswordConfig{})
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterRequest{Email: "user@example.com", Password: "password-1", FirstName: "U", LastName: "S"})
	require.NoError(t, err)

	cases := []LoginRequest{
		{Email: "user@example.com", Password: "wrong-password"},
		{Email: "ghost@example.com", Password: "password-1"},
		{Email: "", Password: "password-1"},
	}
	for _, req := range cases {
		_, err := svc.Login(ctx, req)
		requireCode(t, err, pkgerrors.CodeUnauthorized)
		assert.Equal(t, invalidCredentialsMessage, pkgerrors.As(err).Message())
	}

	require.NoError(t, conn.Model(&models.User{}).Where("email = ?", "user@example.com").Update("is_active", false).Error)
	_, err = svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "password-1"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestLoginUpgradesWeakHashes(t *testing.T) {
	conn := dbtest.Open(t)
	repo := users.NewRepository(conn)
	ctx := context.Background()
	weakHash, err := security.HashPassword("upgrade-me", config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1})
	require.NoError(t, err)
	user, err := repo.Create(ctx, nil, users.CreateUserDTO{Email: "old@example.com", PasswordHash: weakHash, FirstName: "O", LastName: "D"})
	require.NoError(t, err)

	strong := config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 2, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	svc, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: testJWT, PasswordConfig: strong})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "old@example.com", Password: "upgrade-me"})
	require.NoError(t, err)

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, weakHash, reloaded.PasswordHash)
	assert.False(t, security.NeedsRehash(reloaded.PasswordHash, strong))
	ok, err := security.VerifyPassword("upgrade-me", reloaded.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}
