package authserver

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt rejects inputs longer than 72 bytes.
const maxPasswordLength = 72

// HashPassword derives a bcrypt hash from the cleartext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the cleartext password matches the hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// checkPasswordPolicy returns a human-readable refusal, or "" when the
// password is acceptable.
func checkPasswordPolicy(password, confirm string, minLength int) string {
	if len(password) < minLength {
		return fmt.Sprintf("password must be at least %d characters", minLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Sprintf("password must be at most %d characters", maxPasswordLength)
	}
	if password != confirm {
		return "passwords do not match"
	}
	return ""
}
