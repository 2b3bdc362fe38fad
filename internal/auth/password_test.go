package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordLengthOK(t *testing.T) {
	assert.False(t, PasswordLengthOK(""))
	assert.False(t, PasswordLengthOK("abcd"))
	assert.True(t, PasswordLengthOK("abcde"))
	assert.True(t, PasswordLengthOK(strings.Repeat("a", MaxPasswordBytes)))
	assert.False(t, PasswordLengthOK(strings.Repeat("a", MaxPasswordBytes+1)))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct-horse"))
	assert.False(t, CheckPassword(hash, "correct-horsE"))
	assert.False(t, CheckPassword("not-a-hash", "correct-horse"))
}
