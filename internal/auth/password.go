package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 5
	// bcrypt ignores input past 72 bytes.
	MaxPasswordBytes = 72
)

// PasswordLengthOK reports whether plain is long enough to accept and short
// enough for bcrypt to hash in full.
func PasswordLengthOK(plain string) bool {
	return len(plain) >= MinPasswordLength && len(plain) <= MaxPasswordBytes
}

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
