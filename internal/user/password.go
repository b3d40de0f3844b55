package user

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// timingDummyHash is compared against on failure paths that never reach a
// stored hash, so an unknown email costs the same as a wrong password.
var timingDummyHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("equalize"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
}()

func equalizeCompare(password string) {
	_ = bcrypt.CompareHashAndPassword(timingDummyHash, []byte(password))
}
