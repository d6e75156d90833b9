package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/and161185/plaze/internal/errs"
)

// MinPasswordLen is the minimum password length in characters.
const MinPasswordLen = 8

const passwordSpecials = "!@#$%^&*"

// PasswordError lists every rule a password failed.
type PasswordError struct {
	Reasons []string
}

func (e *PasswordError) Error() string {
	return "weak password: " + strings.Join(e.Reasons, "; ")
}

func (e *PasswordError) Unwrap() error { return errs.ErrWeakPassword }

// ValidatePassword checks the password strength rule used at registration and reset.
func ValidatePassword(pw string) error {
	var reasons []string
	if utf8.RuneCountInString(pw) < MinPasswordLen {
		reasons = append(reasons, "must be at least 8 characters long")
	}
	if !strings.ContainsFunc(pw, unicode.IsUpper) {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if !strings.ContainsFunc(pw, unicode.IsDigit) {
		reasons = append(reasons, "must contain a digit")
	}
	if !strings.ContainsAny(pw, passwordSpecials) {
		reasons = append(reasons, "must contain one of "+passwordSpecials)
	}
	if len(reasons) > 0 {
		return &PasswordError{Reasons: reasons}
	}
	return nil
}
