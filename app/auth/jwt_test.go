package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jersey-hub/app/config"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			ExpireTime: 1,
			Issuer:     "jersey-hub",
		},
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService(testConfig())

	token, err := svc.GenerateToken(42, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "admin", claims.Username)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewJWTService(testConfig())
	token, err := svc.GenerateToken(1, "admin")
	require.NoError(t, err)

	other := NewJWTService(&config.Config{
		JWT: config.JWTConfig{Secret: "other-secret", ExpireTime: 1},
	})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	foreign := NewJWTService(&config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: 1, Issuer: "someone-else"},
	})
	token, err := foreign.GenerateToken(1, "admin")
	require.NoError(t, err)

	svc := NewJWTService(testConfig())
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestIssuerDefaultsWhenUnset(t *testing.T) {
	svc := NewJWTService(&config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: 1},
	})

	token, err := svc.GenerateToken(2, "admin")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "jersey-hub", claims.Issuer)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewJWTService(testConfig())
	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	svc := NewJWTService(testConfig())

	token, err := svc.GenerateToken(7, "admin")
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(token)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
}
