package domain

import (
	"fmt"
	"regexp"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)
	hashRegex     = regexp.MustCompile(`^[0-9a-fA-F]{16,128}$`)
)

// ValidateUsername checks username shape (3-24 word characters).
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-24 letters, digits or underscores")
	}
	return nil
}

// ValidatePositiveAmount checks that an atomic amount is positive.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateRoundHash checks a fair.check hash argument.
func ValidateRoundHash(hash string) error {
	if !hashRegex.MatchString(hash) {
		return fmt.Errorf("hash must be 16-128 hex characters")
	}
	return nil
}
