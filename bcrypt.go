package authflow

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor for every stored credential hash.
const bcryptCost = 14

// HashPassword derives the stored bcrypt hash for a cleartext password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(h), err
}

// ComparePasswordAndHash validates the cleartext password against the
// stored hash, collapsing bcrypt's mismatch into the package sentinel.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash hashes a throwaway random password. The provider
// keeps one as a decoy so sign-in attempts for unknown accounts pay the
// same comparison cost as wrong passwords.
func RandomPasswordHash() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	return string(h)
}
