package moemail

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a cleartext password for storage in
// User.PasswordHash. Empty passwords are rejected before hashing.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ComparePasswordAndHash checks a cleartext password against a stored hash.
// A mismatch collapses into ErrMismatchedHashAndPassword so callers never
// learn whether the hash or the password was at fault.
func ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedHashAndPassword
	}
	return err
}
