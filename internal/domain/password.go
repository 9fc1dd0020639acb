package domain

import (
	"fmt"
	"unicode"
)

const (
	minPasswordLength = 8
	// bcrypt only reads the first 72 bytes.
	maxPasswordLength = 72
)

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("%w: password must include upper, lower, and digit", ErrInvalidInput)
	}
	return nil
}

// CheckPasswordPair runs the confirmation check before the policy so a typo
// is reported as a mismatch rather than a weak password.
func CheckPasswordPair(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	return ValidatePassword(password)
}
