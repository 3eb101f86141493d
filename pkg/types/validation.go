package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Compiled once at package initialization
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks if a user or course ID meets format requirements.
// UUIDs and seeded slugs both satisfy it.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole reports whether role is one of the platform roles.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleTutor
}

// NormalizeMessage trims a chat body and checks its length.
func NormalizeMessage(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return body, nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
