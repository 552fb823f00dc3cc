package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(expiry time.Duration) *JWTManager {
	return NewJWTManager(JWTConfig{
		Secret:        "a-long-enough-secret-for-hs256-tests",
		Expiry:        expiry,
		RefreshExpiry: time.Hour,
		Issuer:        "studyquiz-test",
	})
}

func TestGeneratePairRoundTrip(t *testing.T) {
	m := newTestManager(15 * time.Minute)

	pair, err := m.GeneratePair(42, "student@example.com", "student", 3)
	require.NoError(t, err)
	assert.Equal(t, 900, pair.ExpiresIn)

	access, err := m.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(42), access.UserID)
	assert.Equal(t, TokenTypeAccess, access.TokenType)
	assert.Equal(t, 3, access.TokenVersion)
	assert.NotEmpty(t, access.ID)

	refresh, err := m.ValidateToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := newTestManager(-time.Minute)

	token, _, err := m.GenerateAccessToken(1, "a@b.co", "student", 0)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := newTestManager(time.Minute)
	other := NewJWTManager(JWTConfig{Secret: "different-secret", Issuer: "x"})

	token, _, err := issuer.GenerateAccessToken(1, "a@b.co", "student", 0)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGetTokenExpiry(t *testing.T) {
	m := newTestManager(10 * time.Minute)

	token, _, err := m.GenerateAccessToken(1, "a@b.co", "student", 0)
	require.NoError(t, err)

	exp, err := m.GetTokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)
}

func TestPasswordHashing(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("long enough password")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword(hash, "long enough password"))
	assert.ErrorIs(t, VerifyPassword(hash, "wrong password"), ErrPasswordMismatch)
}

func TestValidatePasswordBounds(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("1234567"), ErrPasswordTooShort)
	assert.NoError(t, ValidatePassword("12345678"))
	assert.NoError(t, ValidatePassword(strings.Repeat("a", MaxPasswordBytes)))
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("a", MaxPasswordBytes+1)), ErrPasswordTooLong)
}

func TestValidateTokenRejectsOtherIssuer(t *testing.T) {
	m := newTestManager(time.Minute)
	other := NewJWTManager(JWTConfig{Secret: "a-long-enough-secret-for-hs256-tests", Issuer: "someone-else"})

	token, _, err := other.GenerateAccessToken(1, "a@b.co", "student", 0)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
