package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("jersey-admin-1")
	require.NoError(t, err)
	require.NotEqual(t, "jersey-admin-1", hash)

	assert.True(t, VerifyPassword("jersey-admin-1", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("abc123"))
	assert.Error(t, ValidatePassword("abc"))
	// 空白不计入长度
	assert.Error(t, ValidatePassword("   ab1   "))
}
