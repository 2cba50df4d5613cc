// Package util provides environment variable parsing helpers shared across components.
package util

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ParseBoolEnv parses a boolean environment variable with a default value.
// Accepts: true/1/yes/on and false/0/no/off (case-insensitive). Invalid values return default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}

// GetEnv returns the environment variable value or a default when unset.
func GetEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

var nonDigitRegex = regexp.MustCompile(`[^\d]`)

// CanonicalPhone strips every non-digit character from a phone number.
// Memory keys and user lookups agree on this canonical form.
func CanonicalPhone(phone string) string {
	return nonDigitRegex.ReplaceAllString(phone, "")
}
