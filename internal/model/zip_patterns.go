package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// ZipPatterns is an ordered list of zip/region match patterns. A pattern
// is either an exact value ("90210"), a prefix wildcard ("900*"), or the
// catch-all "*". Stored as comma-separated text.
type ZipPatterns []string

// Scan implements sql.Scanner.
func (z *ZipPatterns) Scan(value interface{}) error {
	if value == nil {
		*z = nil
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported type for ZipPatterns: %T", value)
	}
	if raw == "" {
		*z = nil
		return nil
	}
	parts := strings.Split(raw, ",")
	patterns := make(ZipPatterns, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	*z = patterns
	return nil
}

// Value implements driver.Valuer.
func (z ZipPatterns) Value() (driver.Value, error) {
	return strings.Join(z, ","), nil
}

// Matches reports whether zip satisfies at least one pattern.
func (z ZipPatterns) Matches(zip string) bool {
	for _, pattern := range z {
		if MatchZipPattern(pattern, zip) {
			return true
		}
	}
	return false
}

// MatchZipPattern checks a single pattern against a zip value. "*" matches
// everything, a trailing "*" matches by prefix, anything else is exact.
func MatchZipPattern(pattern, zip string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(zip, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == zip
}
