package auth

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Operator passwords (cashiers and the seeded admin) are stored as bcrypt hashes.
const (
	MinPasswordLength = 8
	// bcrypt only reads the first 72 bytes, so longer passwords are refused rather than truncated.
	MaxPasswordBytes = 72

	DefaultCost = 12
	MinCost     = bcrypt.MinCost
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
)

// ValidatePassword applies the operator password policy. Surrounding spaces do not count.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(strings.TrimSpace(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateCost reports whether cost is usable as a bcrypt work factor.
func ValidateCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return nil
}

func HashPassword(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	if err := ValidateCost(cost); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// unknownOperatorHash is compared against when no operator has the email, so that
// lookup costs about as much as a wrong password.
var unknownOperatorHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("no-such-operator"), DefaultCost)
	if err != nil {
		return ""
	}
	return string(hash)
})
