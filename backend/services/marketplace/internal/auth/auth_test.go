package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/repository"
	"plugin/backend/services/marketplace/internal/store/memory"
)

func newService(t *testing.T) (*Service, *TokenService) {
	t.Helper()
	s := memory.New(nil)
	t.Cleanup(s.Close)
	tokens := NewTokenService("test-secret", time.Hour)
	svc := NewService(
		repository.NewCredentialRepository(s),
		repository.NewUserRepository(s),
		NewBcryptHasher(bcrypt.MinCost),
		tokens,
		zap.NewNop(),
	)
	return svc, tokens
}

func TestSignupAndLogin(t *testing.T) {
	svc, tokens := newService(t)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, "  Ann@Example.com ", "secret1", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", signed.User.Email)
	assert.Equal(t, []models.Role{models.RoleDriver}, signed.User.Roles)
	assert.Equal(t, 0, signed.User.GreenCredits)

	claims, err := tokens.ValidateToken(signed.Token)
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, claims.UserID)
	assert.Equal(t, signed.User.ID, claims.Subject)

	logged, err := svc.Login(ctx, "ANN@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, logged.User.ID)

	_, err = svc.Login(ctx, "ann@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "not-an-email", "secret1", "X")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Signup(ctx, "x@example.com", "short", "X")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	u, err := svc.Signup(ctx, "x@example.com", "secret1", " ")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultUserName, u.User.Name)

	_, err = svc.Signup(ctx, "X@example.com", "secret2", "X")
	assert.ErrorIs(t, err, ErrEmailInUse)
}

func TestBecomeHostIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, "h@example.com", "secret1", "Host")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		u, err := svc.BecomeHost(ctx, signed.User.ID)
		require.NoError(t, err)
		assert.Equal(t, []models.Role{models.RoleDriver, models.RoleHost}, u.Roles)
	}

	me, err := svc.Me(ctx, signed.User.ID)
	require.NoError(t, err)
	assert.True(t, me.HasRole(models.RoleHost))

	_, err = svc.Me(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	tokens := NewTokenService("secret-a", time.Hour)
	other := NewTokenService("secret-b", time.Hour)

	token, err := other.GenerateToken("u1", "u1@example.com")
	require.NoError(t, err)
	_, err = tokens.ValidateToken(token)
	assert.Error(t, err)

	expired := NewTokenService("secret-a", time.Nanosecond)
	token, err = expired.GenerateToken("u1", "u1@example.com")
	require.NoError(t, err)
	time.Sleep(time.Second)
	_, err = tokens.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.ValidateToken(raw)
	assert.Error(t, err)

	_, err = tokens.GenerateToken("", "x")
	assert.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "secret1"))
	assert.Error(t, h.Compare(hash, "secret2"))

	_, err = h.Hash("abc")
	assert.Error(t, err)
}
