package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"minimum length", "8chars!!"},
		{"typical", "correct horse battery staple"},
		{"unicode", "пароль-достаточно-длинный"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$2a$"))
			assert.True(t, CheckPassword(tt.password, hash))
		})
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	for _, password := range []string{"", "short", "1234567"} {
		hash, err := HashPassword(password)
		assert.ErrorIs(t, err, ErrPasswordTooShort)
		assert.Empty(t, hash)
	}
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := HashPassword("same-password-twice")
	require.NoError(t, err)
	second, err := HashPassword("same-password-twice")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each hash carries its own salt")
}

func TestCheckPasswordMismatches(t *testing.T) {
	hash, err := HashPassword("the-real-password")
	require.NoError(t, err)

	assert.False(t, CheckPassword("the-wrong-password", hash))
	assert.False(t, CheckPassword("The-Real-Password", hash))
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("the-real-password", "not-a-bcrypt-hash"))
	assert.False(t, CheckPassword("the-real-password", ""))
}
