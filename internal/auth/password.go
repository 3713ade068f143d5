package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var commonPasswords = []string{
	"12345678", "password", "admin123", "qwerty123",
	"123456789", "Password1", "Admin123", "123456",
}

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordPolicy describes the strength rules for new passwords.
type PasswordPolicy struct {
	MinLength   int
	NeedUpper   bool
	NeedLower   bool
	NeedDigit   bool
	NeedSpecial bool
}

// Validate returns every rule the password breaks. An empty result means the
// password is acceptable.
func (p PasswordPolicy) Validate(password string) []string {
	var problems []string

	if len([]rune(password)) < p.MinLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}

	if p.NeedUpper && !upper {
		problems = append(problems, "password must contain an uppercase letter")
	}
	if p.NeedLower && !lower {
		problems = append(problems, "password must contain a lowercase letter")
	}
	if p.NeedDigit && !digit {
		problems = append(problems, "password must contain a digit")
	}
	if p.NeedSpecial && !special {
		problems = append(problems, "password must contain a special character")
	}

	for _, weak := range commonPasswords {
		if strings.EqualFold(password, weak) {
			problems = append(problems, "password is too common")
			break
		}
	}

	return problems
}
